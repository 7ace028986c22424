package osfamily

import (
	"fmt"
	"strings"

	"github.com/openfroyo/zabbix-web/pkg/facts"
)

const (
	repoBaseURL   = "https://repo.zabbix.com"
	aptKeySource  = "https://repo.zabbix.com/zabbix-official-repo.key"
	rpmGPGKeyURL  = "https://repo.zabbix.com/RPM-GPG-KEY-ZABBIX-A14FE591"
	aptRepoSchema = "http://repo.zabbix.com/zabbix"
)

// YumRepository describes one yum repository.
type YumRepository struct {
	Name     string
	Descr    string
	BaseURL  string
	GPGKey   string
	GPGCheck bool
}

// AptKey describes one apt signing key.
type AptKey struct {
	Name   string
	ID     string
	Source string
}

// AptSource describes one apt source list entry.
type AptSource struct {
	Name     string
	Location string
	Release  string
	Repos    string
}

// Repositories are the package sources declared when manage_repo is set.
type Repositories struct {
	Yum        []YumRepository
	AptKeys    []AptKey
	AptSources []AptSource
}

// Empty reports whether no repository is declared.
func (r Repositories) Empty() bool {
	return len(r.Yum) == 0 && len(r.AptKeys) == 0 && len(r.AptSources) == 0
}

// Repositories returns the package sources for a Zabbix release on host f.
// The repository URLs are built from release facts, so a host missing them
// is an error rather than a malformed source.
func (p Profile) Repositories(version string, f facts.HostFacts) (Repositories, error) {
	switch p.Family {
	case facts.FamilyRedHat:
		major := f.ReleaseMajor
		if major == "" {
			return Repositories{}, fmt.Errorf("%s host has no release_major fact", p.Family)
		}
		return Repositories{
			Yum: []YumRepository{
				{
					Name:     "zabbix",
					Descr:    fmt.Sprintf("Zabbix_%s_$basearch", major),
					BaseURL:  fmt.Sprintf("%s/zabbix/%s/rhel/%s/$basearch/", repoBaseURL, version, major),
					GPGKey:   rpmGPGKeyURL,
					GPGCheck: true,
				},
				{
					Name:     "zabbix-nonsupported",
					Descr:    fmt.Sprintf("Zabbix_nonsupported_%s_$basearch", major),
					BaseURL:  fmt.Sprintf("%s/non-supported/rhel/%s/$basearch/", repoBaseURL, major),
					GPGKey:   rpmGPGKeyURL,
					GPGCheck: true,
				},
			},
		}, nil

	case facts.FamilyDebian:
		if f.Name == "" || f.Codename == "" {
			return Repositories{}, fmt.Errorf("%s host needs name and codename facts", p.Family)
		}
		distro := strings.ToLower(f.Name)
		if distro == "ubuntu" && f.IsARM() {
			distro = "ubuntu-arm64"
		}
		return Repositories{
			AptKeys: []AptKey{
				{Name: "zabbix-A1848F5", ID: "A1848F5352D022B9471D83D0082AB56BA14FE591", Source: aptKeySource},
				{Name: "zabbix-FBABD5F", ID: "FBABD5FB20255ECAB22EE194D13D58E479EA5ED4", Source: aptKeySource},
			},
			AptSources: []AptSource{
				{
					Name:     "zabbix",
					Location: fmt.Sprintf("%s/%s/%s/", aptRepoSchema, version, distro),
					Release:  f.Codename,
					Repos:    "main",
				},
			},
		}, nil
	}
	return Repositories{}, nil
}
