package snmp

import (
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
)

func TestNewClient_defaults(t *testing.T) {
	c := NewClient(Config{Retries: -3})
	if c.cfg.Community != "public" || c.cfg.Version != "2c" || c.cfg.Port != 161 {
		t.Fatalf("unexpected defaults: %+v", c.cfg)
	}
	if c.cfg.Timeout != 900*time.Millisecond || c.cfg.Retries != 0 || c.cfg.MaxRepetitions != 10 {
		t.Fatalf("unexpected defaults: %+v", c.cfg)
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion("v2c"); err != nil || v != gosnmp.Version2c {
		t.Fatalf("expected v2c, got %v %v", v, err)
	}
	if v, err := parseVersion("1"); err != nil || v != gosnmp.Version1 {
		t.Fatalf("expected v1, got %v %v", v, err)
	}
	if _, err := parseVersion("3"); err == nil {
		t.Fatalf("expected v3 to be rejected")
	}
}

func TestCountersFromPDUs(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := oidIfHCInOctets + ".7"
	out := oidIfHCOutOctets + ".7"
	pdus := []gosnmp.SnmpPDU{
		{Name: "." + oidSysUpTime0, Type: gosnmp.TimeTicks, Value: uint32(12345)},
		{Name: "." + in, Type: gosnmp.Counter64, Value: uint64(1_000_000)},
		{Name: "." + out, Type: gosnmp.Counter64, Value: uint64(2_500_000)},
	}

	c, err := countersFromPDUs(7, in, out, pdus, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.InOctets != 1_000_000 || c.OutOctets != 2_500_000 {
		t.Fatalf("unexpected counters: %+v", c)
	}
	if c.Uptime != 123450*time.Millisecond {
		t.Fatalf("unexpected uptime: %s", c.Uptime)
	}
	if !c.ReadAt.Equal(at) || c.IfIndex != 7 {
		t.Fatalf("unexpected metadata: %+v", c)
	}
}

func TestCountersFromPDUs_missingCounter(t *testing.T) {
	in := oidIfHCInOctets + ".2"
	out := oidIfHCOutOctets + ".2"
	pdus := []gosnmp.SnmpPDU{
		{Name: in, Type: gosnmp.Counter64, Value: uint64(10)},
		{Name: out, Type: gosnmp.NoSuchInstance, Value: nil},
	}
	if _, err := countersFromPDUs(2, in, out, pdus, time.Now()); err == nil {
		t.Fatalf("expected error when a counter is absent")
	}
}

func TestLastOIDIndexInt(t *testing.T) {
	if n, ok := lastOIDIndexInt(".1.3.6.1.2.1.31.1.1.1.1.42"); !ok || n != 42 {
		t.Fatalf("expected 42, got %d %v", n, ok)
	}
	if _, ok := lastOIDIndexInt("1.3.x"); ok {
		t.Fatalf("expected non-numeric suffix to fail")
	}
	if _, ok := lastOIDIndexInt(""); ok {
		t.Fatalf("expected empty oid to fail")
	}
}
