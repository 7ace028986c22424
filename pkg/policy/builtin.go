package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		credentialsFileModePolicy(),
		defaultAPIPasswordPolicy(),
		selinuxBooleanPersistentPolicy(),
		zabbixConfModePolicy(),
	}
}

// credentialsFileModePolicy keeps the API credentials file readable by root only.
func credentialsFileModePolicy() Policy {
	return Policy{
		Name:        "credentials-file-mode",
		Description: "The Zabbix API credentials file must be owned by root:root with mode 0400",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"credentials", "permissions"},
		Rego: `package zbxweb.policies.credentials

import rego.v1

deny contains violation if {
	input.resource.type == "File"
	input.resource.name == "/etc/zabbix/api.conf"
	cfg := input.resource.config
	not locked_down(cfg)
	violation := {
		"message": sprintf("%s must be root:root 0400, got %s:%s %s", [
			input.resource.id,
			object.get(cfg, "owner", ""),
			object.get(cfg, "group", ""),
			object.get(cfg, "mode", ""),
		]),
		"resource": input.resource.id,
	}
}

locked_down(cfg) if {
	cfg.owner == "root"
	cfg.group == "root"
	cfg.mode == "0400"
}`,
	}
}

// defaultAPIPasswordPolicy flags the factory default API password.
func defaultAPIPasswordPolicy() Policy {
	return Policy{
		Name:        "default-api-password",
		Description: "Warns when the API resources are managed with the default Admin password",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"credentials"},
		Rego: `package zbxweb.policies.apipassword

import rego.v1

deny contains violation if {
	input.resource.type == "Class"
	input.resource.name == "zabbix::resources::web"
	input.resource.config.parameters.zabbix_pass == "zabbix"
	violation := {
		"message": sprintf("%s uses the default API password", [input.resource.id]),
		"resource": input.resource.id,
	}
}`,
	}
}

// selinuxBooleanPersistentPolicy requires SELinux booleans to survive reboots.
func selinuxBooleanPersistentPolicy() Policy {
	return Policy{
		Name:        "selinux-boolean-persistent",
		Description: "SELinux booleans must be set persistently",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"selinux"},
		Rego: `package zbxweb.policies.selinux

import rego.v1

deny contains violation if {
	input.resource.type == "Selboolean"
	not input.resource.config.persistent
	violation := {
		"message": sprintf("%s is not persistent", [input.resource.id]),
		"resource": input.resource.id,
	}
}`,
	}
}

// zabbixConfModePolicy flags a world readable front-end configuration.
func zabbixConfModePolicy() Policy {
	return Policy{
		Name:        "zabbix-conf-mode",
		Description: "zabbix.conf.php holds the database password and should not be world readable",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"credentials", "permissions"},
		Rego: `package zbxweb.policies.webconf

import rego.v1

deny contains violation if {
	input.resource.type == "File"
	input.resource.name == "/etc/zabbix/web/zabbix.conf.php"
	not endswith(object.get(input.resource.config, "mode", ""), "0")
	violation := {
		"message": sprintf("%s is world readable (mode %s)", [
			input.resource.id,
			object.get(input.resource.config, "mode", ""),
		]),
		"resource": input.resource.id,
	}
}`,
	}
}
