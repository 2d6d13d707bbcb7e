// Package netsetup assigns the vehicle's static address on the link to the
// actuator board.
package netsetup

import (
	"github.com/EVTKSU/ROB-Autonomous/server/config"
	"github.com/EVTKSU/ROB-Autonomous/server/faults"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
)

// linkOps is the slice of netlink the provisioner needs.
type linkOps interface {
	LinkByName(name string) (netlink.Link, error)
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
	AddrAdd(link netlink.Link, addr *netlink.Addr) error
	AddrDel(link netlink.Link, addr *netlink.Addr) error
	LinkSetUp(link netlink.Link) error
}

type kernelOps struct{}

func (kernelOps) LinkByName(name string) (netlink.Link, error) {
	return netlink.LinkByName(name)
}

func (kernelOps) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return netlink.AddrList(link, family)
}

func (kernelOps) AddrAdd(link netlink.Link, addr *netlink.Addr) error {
	return netlink.AddrAdd(link, addr)
}

func (kernelOps) AddrDel(link netlink.Link, addr *netlink.Addr) error {
	return netlink.AddrDel(link, addr)
}

func (kernelOps) LinkSetUp(link netlink.Link) error {
	return netlink.LinkSetUp(link)
}

type Provisioner struct {
	cfg    config.NetworkConfig
	ops    linkOps
	logger *zap.Logger
}

func NewProvisioner(cfg config.NetworkConfig, logger *zap.Logger) *Provisioner {
	return &Provisioner{cfg: cfg, ops: kernelOps{}, logger: logger.Named("netsetup")}
}

// Apply leaves the interface up with exactly the configured IPv4 address.
// Running it again on a configured interface changes nothing. It is a no-op
// when no interface is configured.
func (p *Provisioner) Apply() error {
	if p.cfg.Interface == "" {
		return nil
	}

	want, err := netlink.ParseAddr(p.cfg.AddressCIDR)
	if err != nil {
		return faults.New(faults.ConfigurationFailure, "parse interface address", err)
	}

	link, err := p.ops.LinkByName(p.cfg.Interface)
	if err != nil {
		return faults.New(faults.ConfigurationFailure, "find interface "+p.cfg.Interface, err)
	}

	existing, err := p.ops.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return faults.New(faults.ConfigurationFailure, "list addresses", err)
	}

	present := false
	for i := range existing {
		addr := existing[i]
		if addr.Equal(*want) {
			present = true
			continue
		}
		if err := p.ops.AddrDel(link, &addr); err != nil {
			return faults.New(faults.ConfigurationFailure, "remove address "+addr.IPNet.String(), err)
		}
		p.logger.Info("Removed stale address", zap.String("interface", p.cfg.Interface), zap.String("addr", addr.IPNet.String()))
	}

	if !present {
		if err := p.ops.AddrAdd(link, want); err != nil {
			return faults.New(faults.ConfigurationFailure, "add address", err)
		}
	}

	if err := p.ops.LinkSetUp(link); err != nil {
		return faults.New(faults.ConfigurationFailure, "bring interface up", err)
	}

	p.logger.Info("Interface configured",
		zap.String("interface", p.cfg.Interface),
		zap.String("addr", p.cfg.AddressCIDR),
		zap.Bool("already_present", present),
	)
	return nil
}
