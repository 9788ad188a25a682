// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configstore

import (
	"net"

	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/mde"
)

// MapRuleUpdate is one diffed map_rule row.
type MapRuleUpdate struct {
	Kind UpdateKind
	Name string
	Old  *config.MapRule
	New  *config.MapRule
}

// diffMapRules compares two map_rule snapshots by name.
func diffMapRules(oldRows, newRows []config.MapRule) []MapRuleUpdate {
	oldByName := make(map[string]*config.MapRule, len(oldRows))
	for i := range oldRows {
		oldByName[oldRows[i].Name] = &oldRows[i]
	}
	newByName := make(map[string]*config.MapRule, len(newRows))
	for i := range newRows {
		newByName[newRows[i].Name] = &newRows[i]
	}

	var updates []MapRuleUpdate
	for name, n := range newByName {
		if o, ok := oldByName[name]; ok {
			if !mapRuleEqual(*o, *n) {
				updates = append(updates, MapRuleUpdate{Kind: RowModify, Name: name, Old: o, New: n})
			}
			continue
		}
		updates = append(updates, MapRuleUpdate{Kind: RowNew, Name: name, New: n})
	}
	for name, o := range oldByName {
		if _, ok := newByName[name]; !ok {
			updates = append(updates, MapRuleUpdate{Kind: RowDelete, Name: name, Old: o})
		}
	}
	return updates
}

func mapRuleEqual(a, b config.MapRule) bool {
	if a.Name != b.Name || a.Type != b.Type || a.IPv6Prefix != b.IPv6Prefix || a.IPv4Prefix != b.IPv4Prefix ||
		a.EALen != b.EALen || a.IsFMR != b.IsFMR || a.DMR != b.DMR ||
		a.PSID != b.PSID || a.PSIDLen != b.PSIDLen {
		return false
	}
	if (a.PSIDOffset == nil) != (b.PSIDOffset == nil) {
		return false
	}
	return a.PSIDOffset == nil || *a.PSIDOffset == *b.PSIDOffset
}

// mapStore owns the single mde.Map instance this deployment's MAP rules
// feed. mde.Map's API only exposes a whole-list SetRules, not per-rule
// add/remove, so unlike latencyStore (which diffs down to individual
// Stream setters) a map_rule change rebuilds the full rule list and
// re-applies — the minimum operation the underlying API supports.
type mapStore struct {
	logger *logging.Logger
	m      *mde.Map

	enduserSet bool
	enduser    mde.IPv6Prefix
}

func newMapStore(ifName string, logger *logging.Logger) *mapStore {
	return &mapStore{
		logger: logger,
		m:      mde.New(ifName),
	}
}

func (ms *mapStore) apply(rows []config.MapRule) error {
	rl := mde.NewRuleList()
	for _, row := range rows {
		rule, err := toMDERule(row)
		if err != nil {
			ms.logger.Warn("configstore: skipping invalid map_rule", "name", row.Name, "err", err)
			continue
		}
		rl.Add(rule)
	}
	ms.m.SetRules(rl)
	if len(rows) > 0 {
		ms.m.SetType(toMDEType(rows[0].Type))
	}

	if !ms.enduserSet {
		return nil
	}
	if err := ms.m.SetEndUserPrefix(ms.enduser); err != nil {
		return err
	}
	return ms.m.Apply()
}

func (ms *mapStore) setEndUserPrefix(addr [16]byte, prefixLen int) error {
	ms.enduser = mde.IPv6Prefix{Addr: addr, Len: prefixLen}
	ms.enduserSet = true
	if err := ms.m.SetEndUserPrefix(ms.enduser); err != nil {
		return err
	}
	return ms.m.Apply()
}

func toMDEType(typ string) mde.Type {
	if typ == "map-e" {
		return mde.TypeMAPE
	}
	return mde.TypeMAPT
}

func toMDERule(row config.MapRule) (mde.Rule, error) {
	ipv6Addr, ipv6Len, err := parseIPv6Prefix(row.IPv6Prefix)
	if err != nil {
		return mde.Rule{}, err
	}
	ipv4Addr, ipv4Len, err := parseIPv4Prefix(row.IPv4Prefix)
	if err != nil {
		return mde.Rule{}, err
	}
	var dmr mde.IPv6Prefix
	if row.DMR != "" {
		dmrAddr, dmrLen, err := parseIPv6Prefix(row.DMR)
		if err != nil {
			return mde.Rule{}, err
		}
		dmr = mde.IPv6Prefix{Addr: dmrAddr, Len: dmrLen}
	}

	psidOffset := -1
	if row.PSIDOffset != nil {
		psidOffset = *row.PSIDOffset
	}

	return mde.Rule{
		IPv6Prefix: mde.IPv6Prefix{Addr: ipv6Addr, Len: ipv6Len},
		IPv4Prefix: mde.IPv4Prefix{Addr: ipv4Addr, Len: ipv4Len},
		EALen:      row.EALen,
		PSIDOffset: psidOffset,
		IsFMR:      row.IsFMR,
		DMR:        dmr,
		PSID:       row.PSID,
		PSIDLen:    row.PSIDLen,
	}, nil
}

func parseIPv6Prefix(s string) ([16]byte, int, error) {
	var out [16]byte
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return out, 0, err
	}
	copy(out[:], ip.To16())
	ones, _ := ipnet.Mask.Size()
	return out, ones, nil
}

func parseIPv4Prefix(s string) ([4]byte, int, error) {
	var out [4]byte
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return out, 0, err
	}
	copy(out[:], ip.To4())
	ones, _ := ipnet.Mask.Size()
	return out, ones, nil
}
