// Package export renders a network profile and its reservations as CSV, XLSX,
// YAML or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/limiquantix/addrpool/internal/domain"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat parses a format name. An empty name means CSV.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case "yml":
		return FormatYAML, nil
	case FormatCSV, FormatXLSX, FormatYAML, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unsupported export format %q", domain.ErrInvalidArgument, s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatYAML:
		return "application/yaml"
	case FormatJSON:
		return "application/json"
	default:
		return "text/csv"
	}
}

// Bundle is everything exported for one profile.
type Bundle struct {
	Profile   ProfileSummary `json:"profile" yaml:"profile"`
	Addresses []AddressRow   `json:"addresses" yaml:"addresses"`
}

// ProfileSummary holds the profile fields without its address list.
type ProfileSummary struct {
	Label           string `json:"label" yaml:"label"`
	BaseAddress     string `json:"base_address" yaml:"base_address"`
	Mask            string `json:"mask" yaml:"mask"`
	PrefixLength    int    `json:"prefix_length" yaml:"prefix_length"`
	Gateway         string `json:"gateway" yaml:"gateway"`
	VLANID          int    `json:"vlan_id" yaml:"vlan_id"`
	Overlay         bool   `json:"overlay" yaml:"overlay"`
	Notes           string `json:"notes" yaml:"notes"`
	HostCount       int    `json:"host_count" yaml:"host_count"`
	UsableHostCount int    `json:"usable_host_count" yaml:"usable_host_count"`
	AssignedCount   int    `json:"assigned_count" yaml:"assigned_count"`
}

// AddressRow is one address list entry joined with the NIC holding it.
type AddressRow struct {
	Address    string `json:"address" yaml:"address"`
	Role       string `json:"role" yaml:"role"`
	InUse      bool   `json:"in_use" yaml:"in_use"`
	WorkloadID string `json:"workload_id,omitempty" yaml:"workload_id,omitempty"`
	VMName     string `json:"vm_name,omitempty" yaml:"vm_name,omitempty"`
	NICID      string `json:"nic_id,omitempty" yaml:"nic_id,omitempty"`
}

// BuildBundle joins the profile's address list with the workloads holding its addresses.
func BuildBundle(p *domain.NetworkProfile, workloads []*domain.Workload) *Bundle {
	names := make(map[string]string, len(workloads))
	for _, w := range workloads {
		names[w.ID] = w.VMName
	}
	holders := domain.BuildReservationIndex(p.Label, workloads)

	b := &Bundle{
		Profile: ProfileSummary{
			Label:           p.Label,
			BaseAddress:     p.BaseAddress,
			Mask:            p.Mask,
			PrefixLength:    p.PrefixLength,
			Gateway:         p.Gateway,
			VLANID:          p.VLANID,
			Overlay:         p.Overlay,
			Notes:           p.Notes,
			HostCount:       p.HostCount,
			UsableHostCount: p.UsableHostCount,
			AssignedCount:   p.AssignedCount,
		},
		Addresses: make([]AddressRow, 0, len(p.AddressList)),
	}

	for _, e := range p.AddressList {
		row := AddressRow{Address: e.Value, Role: string(e.Role), InUse: e.InUse}
		if ref, ok := holders[e.Value]; ok {
			row.WorkloadID = ref.WorkloadID
			row.VMName = names[ref.WorkloadID]
			row.NICID = ref.NICID
		}
		b.Addresses = append(b.Addresses, row)
	}
	return b
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName returns a download name for the bundle.
func FileName(b *Bundle, f Format) string {
	name := unsafeFileChars.ReplaceAllString(b.Profile.Label, "_")
	if name == "" {
		name = "profile"
	}
	return name + "." + string(f)
}

// Write renders b to w in format f.
func Write(w io.Writer, f Format, b *Bundle) error {
	switch f {
	case FormatCSV:
		return writeCSV(w, b)
	case FormatXLSX:
		return writeXLSX(w, b)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	default:
		return fmt.Errorf("%w: unsupported export format %q", domain.ErrInvalidArgument, f)
	}
}

var addressHeader = []string{"address", "role", "in_use", "workload_id", "vm_name", "nic_id"}

func addressRecord(r AddressRow) []string {
	return []string{r.Address, r.Role, strconv.FormatBool(r.InUse), r.WorkloadID, r.VMName, r.NICID}
}

func writeCSV(w io.Writer, b *Bundle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(addressHeader); err != nil {
		return err
	}
	for _, r := range b.Addresses {
		if err := cw.Write(addressRecord(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, b *Bundle) error {
	f := excelize.NewFile()
	defer f.Close()

	profileSheet := "Profile"
	if err := f.SetSheetName("Sheet1", profileSheet); err != nil {
		return err
	}
	writeSheetRows(f, profileSheet, buildProfileSheet(b.Profile))

	addressSheet := "Addresses"
	if _, err := f.NewSheet(addressSheet); err != nil {
		return err
	}
	writeSheetRows(f, addressSheet, buildAddressSheet(b.Addresses))

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

func buildProfileSheet(p ProfileSummary) [][]interface{} {
	return [][]interface{}{
		{"label", p.Label},
		{"base_address", p.BaseAddress},
		{"mask", p.Mask},
		{"prefix_length", p.PrefixLength},
		{"gateway", p.Gateway},
		{"vlan_id", p.VLANID},
		{"overlay", p.Overlay},
		{"notes", p.Notes},
		{"host_count", p.HostCount},
		{"usable_host_count", p.UsableHostCount},
		{"assigned_count", p.AssignedCount},
	}
}

func buildAddressSheet(rows []AddressRow) [][]interface{} {
	out := make([][]interface{}, 0, len(rows)+1)
	header := make([]interface{}, len(addressHeader))
	for i, h := range addressHeader {
		header[i] = h
	}
	out = append(out, header)
	for _, r := range rows {
		out = append(out, []interface{}{r.Address, r.Role, r.InUse, r.WorkloadID, r.VMName, r.NICID})
	}
	return out
}

func writeSheetRows(f *excelize.File, sheet string, rows [][]interface{}) {
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = f.SetSheetRow(sheet, cell, &row)
	}
}
