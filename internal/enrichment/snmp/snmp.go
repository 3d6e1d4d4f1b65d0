package snmp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Config holds SNMP connection settings shared by every polled device.
type Config struct {
	Community      string
	Version        string // "2c" (default) | "1"
	Port           uint16
	Timeout        time.Duration
	Retries        int
	MaxRepetitions uint32
}

// Target represents a device that can be queried via SNMP.
type Target struct {
	ID      string // optional device ID, used only for logging
	Address string
}

// Counters is one reading of the 64-bit octet counters of an interface.
type Counters struct {
	IfIndex   int
	InOctets  uint64
	OutOctets uint64
	// Uptime is sysUpTime; a drop between readings means the agent restarted.
	Uptime time.Duration
	ReadAt time.Time
}

type InterfaceInfo struct {
	IfIndex  int
	Name     *string
	SpeedBps *int64
}

// Client wraps a minimal SNMPv2c implementation.
type Client struct {
	cfg Config
	now func() time.Time
}

func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.Community) == "" {
		cfg.Community = "public"
	}
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = "2c"
	}
	if cfg.Port == 0 {
		cfg.Port = 161
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 900 * time.Millisecond
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.MaxRepetitions == 0 {
		cfg.MaxRepetitions = 10
	}
	return &Client{cfg: cfg, now: time.Now}
}

func parseVersion(v string) (gosnmp.SnmpVersion, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "2c", "v2c", "":
		return gosnmp.Version2c, nil
	case "1", "v1":
		return gosnmp.Version1, nil
	default:
		return 0, fmt.Errorf("unsupported snmp version %q", v)
	}
}

func (c *Client) connect(ctx context.Context, target Target) (*gosnmp.GoSNMP, error) {
	version, err := parseVersion(c.cfg.Version)
	if err != nil {
		return nil, err
	}

	s := &gosnmp.GoSNMP{
		Context:        ctx,
		Target:         target.Address,
		Port:           c.cfg.Port,
		Community:      c.cfg.Community,
		Version:        version,
		Timeout:        c.cfg.Timeout,
		Retries:        c.cfg.Retries,
		MaxRepetitions: c.cfg.MaxRepetitions,
	}
	if err := s.Connect(); err != nil {
		return nil, err
	}
	return s, nil
}

const (
	oidSysUpTime0 = "1.3.6.1.2.1.1.3.0"

	oidIfName        = "1.3.6.1.2.1.31.1.1.1.1"
	oidIfHCInOctets  = "1.3.6.1.2.1.31.1.1.1.6"
	oidIfHCOutOctets = "1.3.6.1.2.1.31.1.1.1.10"
	oidIfHighSpeed   = "1.3.6.1.2.1.31.1.1.1.15"
)

func pduString(pdu gosnmp.SnmpPDU) (*string, bool) {
	switch v := pdu.Value.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, true
		}
		return &s, true
	case []byte:
		s := strings.TrimSpace(string(v))
		if s == "" {
			return nil, true
		}
		return &s, true
	default:
		return nil, false
	}
}

func pduUint64(pdu gosnmp.SnmpPDU) (uint64, bool) {
	switch v := pdu.Value.(type) {
	case uint64:
		return v, true
	case uint32:
		return uint64(v), true
	case uint:
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}

func lastOIDIndexInt(oid string) (int, bool) {
	oid = strings.TrimSpace(oid)
	if oid == "" {
		return 0, false
	}
	parts := strings.Split(oid, ".")
	last := parts[len(parts)-1]
	n, err := strconv.Atoi(last)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ReadCounters fetches ifHCInOctets/ifHCOutOctets for one interface together
// with sysUpTime in a single GET.
func (c *Client) ReadCounters(ctx context.Context, target Target, ifIndex int) (Counters, error) {
	if c == nil {
		return Counters{}, errors.New("snmp client is nil")
	}

	s, err := c.connect(ctx, target)
	if err != nil {
		return Counters{}, err
	}
	defer s.Conn.Close()

	inOID := fmt.Sprintf("%s.%d", oidIfHCInOctets, ifIndex)
	outOID := fmt.Sprintf("%s.%d", oidIfHCOutOctets, ifIndex)
	pkt, err := s.Get([]string{oidSysUpTime0, inOID, outOID})
	if err != nil {
		return Counters{}, err
	}
	return countersFromPDUs(ifIndex, inOID, outOID, pkt.Variables, c.now())
}

func countersFromPDUs(ifIndex int, inOID, outOID string, pdus []gosnmp.SnmpPDU, at time.Time) (Counters, error) {
	out := Counters{IfIndex: ifIndex, ReadAt: at}
	var haveIn, haveOut bool
	for _, v := range pdus {
		name := strings.TrimPrefix(v.Name, ".")
		switch name {
		case oidSysUpTime0:
			if ticks, ok := pduUint64(v); ok {
				out.Uptime = time.Duration(ticks) * 10 * time.Millisecond
			}
		case inOID:
			out.InOctets, haveIn = pduUint64(v)
		case outOID:
			out.OutOctets, haveOut = pduUint64(v)
		}
	}
	if !haveIn || !haveOut {
		return Counters{}, fmt.Errorf("ifIndex %d: octet counters not available", ifIndex)
	}
	return out, nil
}

// WalkInterfaces lists interface names and speeds, used to resolve an uplink
// by name when no ifIndex is stored.
func (c *Client) WalkInterfaces(ctx context.Context, target Target) (map[int]InterfaceInfo, error) {
	if c == nil {
		return nil, errors.New("snmp client is nil")
	}

	s, err := c.connect(ctx, target)
	if err != nil {
		return nil, err
	}
	defer s.Conn.Close()

	out := make(map[int]InterfaceInfo)
	walk := func(baseOID string, handle func(ii *InterfaceInfo, p gosnmp.SnmpPDU)) error {
		pdus, err := s.BulkWalkAll(baseOID)
		if err != nil {
			return err
		}
		for _, p := range pdus {
			idx, ok := lastOIDIndexInt(p.Name)
			if !ok {
				continue
			}
			ii := out[idx]
			ii.IfIndex = idx
			handle(&ii, p)
			out[idx] = ii
		}
		return nil
	}

	if err := walk(oidIfName, func(ii *InterfaceInfo, p gosnmp.SnmpPDU) {
		if s, ok := pduString(p); ok {
			ii.Name = s
		}
	}); err != nil {
		return nil, err
	}
	_ = walk(oidIfHighSpeed, func(ii *InterfaceInfo, p gosnmp.SnmpPDU) {
		if n, ok := pduUint64(p); ok {
			// ifHighSpeed is in Mbps.
			bps := int64(n) * 1_000_000
			ii.SpeedBps = &bps
		}
	})

	return out, nil
}
