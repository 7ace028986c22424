package facts

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRoot(t *testing.T, osRelease string, enforce string) string {
	t.Helper()
	root := t.TempDir()

	if osRelease != "" {
		if err := os.MkdirAll(filepath.Join(root, "etc"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(root, "etc", "os-release"), []byte(osRelease), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if enforce != "" {
		dir := filepath.Join(root, "sys", "fs", "selinux")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "enforce"), []byte(enforce), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name         string
		osRelease    string
		enforce      string
		wantFamily   Family
		wantName     string
		wantMajor    string
		wantCodename string
		wantSELinux  bool
		wantEnforced bool
	}{
		{
			name: "rocky with selinux enforcing",
			osRelease: `NAME="Rocky Linux"
VERSION="8.9 (Green Obsidian)"
ID="rocky"
ID_LIKE="rhel centos fedora"
VERSION_ID="8.9"
`,
			enforce:      "1\n",
			wantFamily:   FamilyRedHat,
			wantName:     "Rocky",
			wantMajor:    "8",
			wantSELinux:  true,
			wantEnforced: true,
		},
		{
			name: "ubuntu",
			osRelease: `NAME="Ubuntu"
VERSION_ID="22.04"
ID=ubuntu
ID_LIKE=debian
VERSION_CODENAME=jammy
`,
			wantFamily:   FamilyDebian,
			wantName:     "Ubuntu",
			wantMajor:    "22",
			wantCodename: "jammy",
		},
		{
			name: "derivative resolved through ID_LIKE",
			osRelease: `# comment
NAME="Linux Mint"
ID=linuxmint
ID_LIKE="ubuntu debian"
VERSION_ID="21.3"
UBUNTU_CODENAME=jammy
`,
			wantFamily:   FamilyDebian,
			wantName:     "Linux",
			wantMajor:    "21",
			wantCodename: "jammy",
		},
		{
			name:       "arch",
			osRelease:  "NAME=\"Arch Linux\"\nID=arch\n",
			wantFamily: FamilyArchlinux,
			wantName:   "Archlinux",
		},
		{
			name:        "unknown with selinux permissive",
			osRelease:   "NAME=Plan9\nID=plan9\n",
			enforce:     "0",
			wantFamily:  FamilyUnknown,
			wantName:    "Plan9",
			wantSELinux: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := writeRoot(t, tt.osRelease, tt.enforce)

			facts, err := Discover(root)
			if err != nil {
				t.Fatalf("Discover() failed: %v", err)
			}
			if facts.Family != tt.wantFamily {
				t.Errorf("Family = %q, want %q", facts.Family, tt.wantFamily)
			}
			if facts.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", facts.Name, tt.wantName)
			}
			if facts.ReleaseMajor != tt.wantMajor {
				t.Errorf("ReleaseMajor = %q, want %q", facts.ReleaseMajor, tt.wantMajor)
			}
			if facts.Codename != tt.wantCodename {
				t.Errorf("Codename = %q, want %q", facts.Codename, tt.wantCodename)
			}
			if facts.SELinux.Enabled != tt.wantSELinux {
				t.Errorf("SELinux.Enabled = %v, want %v", facts.SELinux.Enabled, tt.wantSELinux)
			}
			if facts.SELinux.Enforced != tt.wantEnforced {
				t.Errorf("SELinux.Enforced = %v, want %v", facts.SELinux.Enforced, tt.wantEnforced)
			}
			if facts.Architecture == "" {
				t.Error("expected architecture to be set")
			}
		})
	}
}

func TestDiscover_NoOSRelease(t *testing.T) {
	facts, err := Discover(t.TempDir())
	if err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}
	if facts.Family == FamilyRedHat || facts.Family == FamilyDebian {
		t.Errorf("unexpected family %q without os-release", facts.Family)
	}
	if facts.SELinux.Enabled {
		t.Error("SELinux should be disabled without the enforce file")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "facts.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
family: RedHat
name: CentOS
release_major: "7"
selinux:
  enabled: true
`), 0o644); err != nil {
		t.Fatal(err)
	}

	facts, err := LoadFile(yamlPath)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if facts.Family != FamilyRedHat || facts.ReleaseMajor != "7" || !facts.SELinux.Enabled {
		t.Errorf("unexpected facts: %+v", facts)
	}

	jsonPath := filepath.Join(dir, "facts.json")
	if err := os.WriteFile(jsonPath, []byte(`{"name": "Debian", "release_major": "12"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	facts, err = LoadFile(jsonPath)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if facts.Family != FamilyUnknown {
		t.Errorf("missing family should default to Unknown, got %q", facts.Family)
	}

	badPath := filepath.Join(dir, "facts.json")
	if err := os.WriteFile(badPath, []byte(`{"famly": "Debian"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(badPath); err == nil {
		t.Error("expected error for unknown fact")
	}

	if _, err := LoadFile(filepath.Join(dir, "facts.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestHostFacts_Helpers(t *testing.T) {
	f := HostFacts{Family: FamilyDebian, Architecture: "aarch64", SELinux: SELinuxFacts{Enabled: true}}
	if !f.IsARM() {
		t.Error("expected IsARM() for aarch64")
	}

	m := f.ToMap()
	if m["family"] != "Debian" {
		t.Errorf("family = %v", m["family"])
	}
	selinux := m["selinux"].(map[string]any)
	if selinux["enabled"] != true {
		t.Errorf("selinux.enabled = %v", selinux["enabled"])
	}
}
