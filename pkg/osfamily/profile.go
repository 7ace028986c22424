// Package osfamily maps host facts to the OS specific constants the catalog
// compiler needs: package names, ownership defaults, paths and repositories.
package osfamily

import (
	"github.com/openfroyo/zabbix-web/pkg/config"
	"github.com/openfroyo/zabbix-web/pkg/facts"
)

// Profile holds the constants of one OS family.
type Profile struct {
	Family facts.Family

	// Packages lists the front-end packages per database backend, in
	// declaration order.
	Packages map[config.DatabaseType][]string

	// Default ownership of zabbix.conf.php.
	WebConfigOwner string
	WebConfigGroup string

	// DocRoot is where the front-end package installs its PHP sources.
	DocRoot string

	// PHPService is the PHP runtime service. Empty when PHP runs inside Apache.
	PHPService string

	// PHP-FPM pool, only meaningful when PHPService is set.
	PHPFPMPoolPath string
	PHPFPMSocket   string
	PHPFPMUser     string
	PHPFPMGroup    string
}

// PackagesFor returns a copy of the package set for backend.
func (p Profile) PackagesFor(backend config.DatabaseType) []string {
	pkgs := p.Packages[backend]
	out := make([]string, len(pkgs))
	copy(out, pkgs)
	return out
}

// UsesPHPFPM reports whether the family runs PHP as a separate service.
func (p Profile) UsesPHPFPM() bool {
	return p.PHPService != ""
}

var profiles = map[facts.Family]Profile{
	facts.FamilyRedHat: {
		Family: facts.FamilyRedHat,
		Packages: map[config.DatabaseType][]string{
			config.DatabasePostgreSQL: {"zabbix-web", "zabbix-web-pgsql"},
			config.DatabaseMySQL:      {"zabbix-web-mysql", "zabbix-web"},
		},
		WebConfigOwner: "apache",
		WebConfigGroup: "apache",
		DocRoot:        "/usr/share/zabbix",
		PHPService:     "php-fpm",
		PHPFPMPoolPath: "/etc/php-fpm.d/zabbix.conf",
		PHPFPMSocket:   "/run/php-fpm/zabbix.sock",
		PHPFPMUser:     "apache",
		PHPFPMGroup:    "apache",
	},
	facts.FamilyDebian: {
		Family: facts.FamilyDebian,
		Packages: map[config.DatabaseType][]string{
			config.DatabasePostgreSQL: {"zabbix-frontend-php", "php-pgsql"},
			config.DatabaseMySQL:      {"zabbix-frontend-php", "php-mysql"},
		},
		WebConfigOwner: "www-data",
		WebConfigGroup: "www-data",
		DocRoot:        "/usr/share/zabbix",
	},
}

// Resolve returns the profile for the host's family. ok is false for families
// the front-end cannot be compiled for.
func Resolve(f facts.HostFacts) (Profile, bool) {
	p, ok := profiles[f.Family]
	return p, ok
}

// SupportedFamilies lists the families Resolve accepts.
func SupportedFamilies() []facts.Family {
	return []facts.Family{facts.FamilyDebian, facts.FamilyRedHat}
}
