// Package facts describes the host a catalog is compiled for and discovers
// those facts from a local filesystem.
package facts

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Family is the operating system family of a host.
type Family string

const (
	FamilyRedHat    Family = "RedHat"
	FamilyDebian    Family = "Debian"
	FamilyArchlinux Family = "Archlinux"
	FamilyGentoo    Family = "Gentoo"
	FamilyFreeBSD   Family = "FreeBSD"
	FamilyWindows   Family = "windows"
	FamilyUnknown   Family = "Unknown"
)

// SELinuxFacts describes the SELinux state of a host.
type SELinuxFacts struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Enforced    bool   `json:"enforced" yaml:"enforced"`
	CurrentMode string `json:"current_mode,omitempty" yaml:"current_mode,omitempty"`
}

// HostFacts is the read-only description of the target host.
type HostFacts struct {
	Family       Family       `json:"family" yaml:"family"`
	Name         string       `json:"name" yaml:"name"`
	ReleaseMajor string       `json:"release_major" yaml:"release_major"`
	ReleaseFull  string       `json:"release_full,omitempty" yaml:"release_full,omitempty"`
	Codename     string       `json:"codename,omitempty" yaml:"codename,omitempty"`
	Architecture string       `json:"architecture,omitempty" yaml:"architecture,omitempty"`
	Hostname     string       `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	SELinux      SELinuxFacts `json:"selinux" yaml:"selinux"`
}

// IsARM reports whether the host runs on 64-bit ARM.
func (f HostFacts) IsARM() bool {
	return f.Architecture == "aarch64" || f.Architecture == "arm64"
}

// ToMap returns the facts as a plain map, for script inputs.
func (f HostFacts) ToMap() map[string]any {
	return map[string]any{
		"family":        string(f.Family),
		"name":          f.Name,
		"release_major": f.ReleaseMajor,
		"release_full":  f.ReleaseFull,
		"codename":      f.Codename,
		"architecture":  f.Architecture,
		"hostname":      f.Hostname,
		"selinux": map[string]any{
			"enabled":      f.SELinux.Enabled,
			"enforced":     f.SELinux.Enforced,
			"current_mode": f.SELinux.CurrentMode,
		},
	}
}

// osNames maps os-release IDs to the OS names used in facts.
var osNames = map[string]string{
	"rhel":      "RedHat",
	"centos":    "CentOS",
	"rocky":     "Rocky",
	"almalinux": "AlmaLinux",
	"ol":        "OracleLinux",
	"fedora":    "Fedora",
	"amzn":      "Amazon",
	"debian":    "Debian",
	"ubuntu":    "Ubuntu",
	"arch":      "Archlinux",
	"gentoo":    "Gentoo",
	"freebsd":   "FreeBSD",
}

// familyOf maps an os-release ID to its family.
var familyOf = map[string]Family{
	"rhel":      FamilyRedHat,
	"centos":    FamilyRedHat,
	"rocky":     FamilyRedHat,
	"almalinux": FamilyRedHat,
	"ol":        FamilyRedHat,
	"fedora":    FamilyRedHat,
	"amzn":      FamilyRedHat,
	"debian":    FamilyDebian,
	"ubuntu":    FamilyDebian,
	"arch":      FamilyArchlinux,
	"gentoo":    FamilyGentoo,
	"freebsd":   FamilyFreeBSD,
}

// machineArch maps GOARCH values to uname machine names.
var machineArch = map[string]string{
	"amd64": "x86_64",
	"arm64": "aarch64",
	"386":   "i386",
}

// Discover reads facts from the filesystem rooted at root ("/" on a real host).
func Discover(root string) (*HostFacts, error) {
	facts := &HostFacts{Family: FamilyUnknown}

	release, err := readOSRelease(filepath.Join(root, "etc", "os-release"))
	switch {
	case err == nil:
		applyOSRelease(facts, release)
	case os.IsNotExist(err):
		switch runtime.GOOS {
		case "windows":
			facts.Family, facts.Name = FamilyWindows, "windows"
		case "freebsd":
			facts.Family, facts.Name = FamilyFreeBSD, "FreeBSD"
		}
	default:
		return nil, fmt.Errorf("failed to read os-release: %w", err)
	}

	if arch, ok := machineArch[runtime.GOARCH]; ok {
		facts.Architecture = arch
	} else {
		facts.Architecture = runtime.GOARCH
	}

	if hostname, err := os.Hostname(); err == nil {
		facts.Hostname = hostname
	}

	enforce, err := os.ReadFile(filepath.Join(root, "sys", "fs", "selinux", "enforce"))
	if err == nil {
		facts.SELinux.Enabled = true
		facts.SELinux.Enforced = strings.TrimSpace(string(enforce)) == "1"
		if facts.SELinux.Enforced {
			facts.SELinux.CurrentMode = "enforcing"
		} else {
			facts.SELinux.CurrentMode = "permissive"
		}
	}

	log.Debug().
		Str("family", string(facts.Family)).
		Str("name", facts.Name).
		Str("release", facts.ReleaseFull).
		Bool("selinux", facts.SELinux.Enabled).
		Msg("Discovered host facts")

	return facts, nil
}

func applyOSRelease(facts *HostFacts, release map[string]string) {
	id := strings.ToLower(release["ID"])

	facts.Family = FamilyUnknown
	if family, ok := familyOf[id]; ok {
		facts.Family = family
	} else {
		for _, like := range strings.Fields(strings.ToLower(release["ID_LIKE"])) {
			if family, ok := familyOf[like]; ok {
				facts.Family = family
				break
			}
		}
	}

	if name, ok := osNames[id]; ok {
		facts.Name = name
	} else if fields := strings.Fields(release["NAME"]); len(fields) > 0 {
		facts.Name = fields[0]
	}

	facts.ReleaseFull = release["VERSION_ID"]
	facts.ReleaseMajor, _, _ = strings.Cut(facts.ReleaseFull, ".")

	facts.Codename = release["VERSION_CODENAME"]
	if facts.Codename == "" {
		facts.Codename = release["UBUNTU_CODENAME"]
	}
}

// readOSRelease parses an os-release file into key/value pairs.
func readOSRelease(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[key] = strings.Trim(value, `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return values, nil
}

// LoadFile reads facts from a YAML or JSON file.
func LoadFile(path string) (*HostFacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read facts file: %w", err)
	}

	facts := &HostFacts{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(facts); err != nil {
			return nil, fmt.Errorf("failed to decode facts %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(facts); err != nil {
			return nil, fmt.Errorf("failed to decode facts %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported facts file extension %q", filepath.Ext(path))
	}

	if facts.Family == "" {
		facts.Family = FamilyUnknown
	}
	return facts, nil
}
