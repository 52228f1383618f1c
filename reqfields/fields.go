// Package reqfields enumerates the query parameters Eloqua attaches to
// cloud app calls, per request kind, and parses them into a flat map.
// Fields not listed are ignored; fields without a value are omitted.
package reqfields

import "net/url"

// Base fields present on every cloud app request.
var Base = []string{
	"user_id", "user_name", "user_culture",
	"install_id", "site_id", "site_name", "app_id",
}

// App covers app-level (lifecycle) requests.
var App = append([]string{"callback_url"}, Base...)

// Service covers service-level requests: action, decision, feeder,
// content, menu and firehose services.
var Service = append([]string{
	"instance_id", "asset_id", "asset_name", "asset_type",
	"execution_id", "entity_type", "custom_object_id",
	"original_install_id", "original_instance_id",
	"original_asset_id", "original_asset_name",
	"render_type", "is_preview", "visitor_id", "event_type",
}, Base...)

type Args map[string]string

// Parse maps the listed fields out of the query string.
func Parse(query url.Values, fields []string) Args {
	out := make(Args)
	for _, field := range fields {
		if v := query.Get(field); v != "" {
			out[field] = v
		}
	}
	return out
}
