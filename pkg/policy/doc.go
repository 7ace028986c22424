// Package policy checks compiled catalogs against Open Policy Agent (OPA)
// policies written in Rego.
//
// Each enabled policy is evaluated once per resource. The input document is
//
//	{
//	  "resource": {"id": "File[/etc/zabbix/api.conf]", "type": "File", "name": "...", "config": {...}},
//	  "context":  {"node": "...", "family": "RedHat", "operation": "compile"}
//	}
//
// and every entry of the package's deny set becomes a violation. An entry may
// be a string or an object with message, severity, resource and remediation
// keys. Violations of severity error or critical make the catalog not allowed.
//
// Built-in policies:
//
//   - credentials-file-mode: /etc/zabbix/api.conf must be root:root 0400
//   - default-api-password: warns when the API class keeps the default password
//   - selinux-boolean-persistent: SELinux booleans must be persistent
//   - zabbix-conf-mode: warns when zabbix.conf.php is world readable
//
// Site policies load from .rego files (severity warning) or .json policy
// definitions:
//
//	eng, err := policy.NewEngine(logger)
//	if err := eng.LoadPolicies(ctx, []string{"/etc/zbxweb/policies"}); err != nil {
//	    return err
//	}
//	result, err := eng.Evaluate(ctx, cfg)
package policy
