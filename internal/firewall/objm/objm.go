// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package objm loads and validates ipset "objm" files: small JSON documents
// that describe one ipset's type, create options, and member values. Each
// local ipset row in config references an objm file by name; the referenced
// document is loaded, validated against the enumerated ipset type strings,
// and its values are fed to one ipset restore call that creates, flushes
// and fills the set.
//
// This is deliberately independent of internal/firewall's IPSetManager/
// SetType/nftables-set machinery, which manages nftables sets, not ipset(8)
// sets, and shells out to ipset directly the same way AtomicRulesetUpdate
// shells out to nft.
package objm

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Type is one of the ipset type strings accepted by ipset(8) create. The
// enumeration matches osn_ipset_type's members one for one.
type Type string

const (
	TypeBitmapIP       Type = "bitmap:ip"
	TypeBitmapIPMAC    Type = "bitmap:ip,mac"
	TypeBitmapPort     Type = "bitmap:port"
	TypeHashIP         Type = "hash:ip"
	TypeHashMAC        Type = "hash:mac"
	TypeHashIPMAC      Type = "hash:ip,mac"
	TypeHashNet        Type = "hash:net"
	TypeHashNetNet     Type = "hash:net,net"
	TypeHashIPPort     Type = "hash:ip,port"
	TypeHashNetPort    Type = "hash:net,port"
	TypeHashIPPortIP   Type = "hash:ip,port,ip"
	TypeHashIPPortNet  Type = "hash:ip,port,net"
	TypeHashIPMark     Type = "hash:ip,mark"
	TypeHashNetPortNet Type = "hash:net,port,net"
	TypeHashNetIface   Type = "hash:net,iface"
	TypeListSet        Type = "list:set"
)

var validTypes = map[Type]bool{
	TypeBitmapIP: true, TypeBitmapIPMAC: true, TypeBitmapPort: true,
	TypeHashIP: true, TypeHashMAC: true, TypeHashIPMAC: true,
	TypeHashNet: true, TypeHashNetNet: true, TypeHashIPPort: true,
	TypeHashNetPort: true, TypeHashIPPortIP: true, TypeHashIPPortNet: true,
	TypeHashIPMark: true, TypeHashNetPortNet: true, TypeHashNetIface: true,
	TypeListSet: true,
}

// optionsCharset allows option strings built from flags like "family inet
// hashsize 1024 maxelem 65536" as well as numeric/path-like tokens; any
// character outside this set is rejected rather than risk it being
// interpreted as shell metacharacters when ultimately shelled out to ipset.
const optionsCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 /,.:-_"

// Document is the objm file schema: { "type", "options", "values" }.
type Document struct {
	Type    string   `json:"type"`
	Options string   `json:"options"`
	Values  []string `json:"values"`
}

// Set is a validated, ready-to-apply objm document.
type Set struct {
	Name    string
	Type    Type
	Options string
	Values  []string
}

// Load reads and validates an objm file. name is the ipset name it will be
// materialized under, independent of the file's own path.
func Load(path, name string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("objm: read %s: %w", path, err)
	}
	return Parse(data, name)
}

// Parse validates raw JSON bytes against the objm schema.
func Parse(data []byte, name string) (*Set, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("objm: invalid json: %w", err)
	}
	return validate(&doc, name)
}

func validate(doc *Document, name string) (*Set, error) {
	if name == "" {
		return nil, fmt.Errorf("objm: name must not be empty")
	}
	t := Type(doc.Type)
	if !validTypes[t] {
		return nil, fmt.Errorf("objm: unknown ipset type %q", doc.Type)
	}
	if !validOptions(doc.Options) {
		return nil, fmt.Errorf("objm: options %q contains characters other than letters, digits, spaces, and /,.:-_", doc.Options)
	}
	for _, v := range doc.Values {
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("objm: empty value entry")
		}
	}
	return &Set{Name: name, Type: t, Options: doc.Options, Values: doc.Values}, nil
}

func validOptions(options string) bool {
	for _, r := range options {
		if !strings.ContainsRune(optionsCharset, r) {
			return false
		}
	}
	return true
}

// ErrTypeMismatch is returned by CheckRowType when an objm file's declared
// type disagrees with the ipset row that references it.
var ErrTypeMismatch = errors.New("objm: type mismatch")

// CheckRowType verifies the objm document's type against the ipset row's
// own independently declared type. A local ipset row and the objm file it
// points at each carry a type; they must agree.
func (s *Set) CheckRowType(rowType string) error {
	if string(s.Type) != rowType {
		return fmt.Errorf("%w: objm declares %q, row declares %q", ErrTypeMismatch, s.Type, rowType)
	}
	return nil
}

// Applier shells the set out to the real ipset(8) binary. It is the
// production Apply implementation; tests substitute a fake runner.
type Applier struct {
	// Run executes one ipset invocation with the given arguments and
	// optional stdin (used for ipset restore). Defaults to exec.Command
	// when nil.
	Run func(stdin string, args ...string) error
}

// NewApplier returns an Applier that shells out to the ipset binary.
func NewApplier() *Applier {
	return &Applier{Run: runIpset}
}

func runIpset(stdin string, args ...string) error {
	cmd := exec.Command("ipset", args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ipset %s: %w\noutput: %s", strings.Join(args, " "), err, output)
	}
	return nil
}

// Apply (re)creates the named set with the validated type/options and
// replaces its members in one atomic "ipset restore" transaction: a create
// with -exist followed by a flush and an add per value, so a set that
// already exists with the same members is a no-op application rather than
// an error.
func (a *Applier) Apply(s *Set) error {
	run := a.Run
	if run == nil {
		run = runIpset
	}

	var script strings.Builder
	fmt.Fprintf(&script, "create %s %s", s.Name, s.Type)
	if s.Options != "" {
		fmt.Fprintf(&script, " %s", s.Options)
	}
	script.WriteString(" -exist\n")
	fmt.Fprintf(&script, "flush %s\n", s.Name)
	for _, v := range s.Values {
		fmt.Fprintf(&script, "add %s %s\n", s.Name, v)
	}

	return run(script.String(), "restore")
}

// Destroy removes a named ipset, ignoring the case where it never existed.
func (a *Applier) Destroy(name string) error {
	run := a.Run
	if run == nil {
		run = runIpset
	}
	return run("", "destroy", name, "-exist")
}
