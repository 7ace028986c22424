// Package config loads and validates the parameter record of the Zabbix web
// front-end.
//
// # Overview
//
// A parameter record (Params) is the only user input besides host facts. It
// can be written in CUE, JSON or YAML; several files may be layered, each one
// overriding the options it sets on top of DefaultParams.
//
// # Components
//
// Loader: reads parameter sources, exports CUE through JSON so nested maps keep
// their key order, and rejects unknown options.
//
// Validator: checks struct tags with go-playground/validator, cross-option
// rules (for example apache_vhost_custom_params needs a managed vhost), and the built-in
// CUE schema #WebParams held by SchemaRegistry.
//
// StarlarkEvaluator: runs override scripts. A script sees the current options
// as the dict "params" and may assign a dict named "overrides".
//
// Watcher: notifies the CLI when parameter files change.
//
// OrderedMap: order-preserving map used for saml_settings and
// apache_vhost_custom_params, whose key order is part of the rendered output.
//
// # Usage Example
//
//	loader := config.NewLoader()
//	loaded, err := loader.Load(ctx, []string{"web.cue", "site.yaml"})
//	if err != nil {
//	    return err
//	}
//	if err := loader.Validate(ctx, loaded.Params); err != nil {
//	    return err
//	}
//
// # Overrides
//
//	overrides = {}
//	if version_at_least(params["zabbix_version"], "6.0"):
//	    overrides["database_double_ieee754"] = True
package config
