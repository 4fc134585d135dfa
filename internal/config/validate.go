package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

var storageTypes = map[string]bool{"json": true, "sqlite": true, "dynamodb": true, "s3": true}

// NormalizeAndValidate returns a normalized copy of cfg and what is wrong with it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Scrape.SearchTerms = trimList(out.Scrape.SearchTerms)
	out.Storage.Type = strings.ToLower(strings.TrimSpace(out.Storage.Type))
	out.Places.Region = strings.ToLower(strings.TrimSpace(out.Places.Region))
	out.Log.Level = strings.ToLower(strings.TrimSpace(out.Log.Level))

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}
	if out.App.StopTimeoutSeconds < 0 {
		res.addErr("app.stop_timeout_seconds must be >= 0")
	}

	if out.Places.RequestsPerSecond < 0 {
		res.addErr("places.requests_per_second must be >= 0")
	} else if out.Places.RequestsPerSecond > 10 {
		res.addWarn("places.requests_per_second is high (%.1f) and may exhaust quota.", out.Places.RequestsPerSecond)
	}
	if out.Places.MaxRetries < 1 || out.Places.MaxRetries > 10 {
		res.addErr("places.max_retries must be 1..10")
	}
	if out.Places.PageLimit < 1 || out.Places.PageLimit > 3 {
		res.addErr("places.page_limit must be 1..3")
	}
	if out.Places.Region != "" && len(out.Places.Region) != 2 {
		res.addErr("places.region must be a 2-letter code")
	}

	if len(out.Scrape.SearchTerms) == 0 {
		res.addErr("scrape.search_terms must have at least 1 term")
	}
	if r := out.Scrape.DefaultRadius; r < 100 || r > 50000 {
		res.addErr("scrape.default_radius must be 100..50000")
	}
	if d := out.Scrape.RequestDelayMS; d < 100 || d > 10000 {
		res.addErr("scrape.request_delay_ms must be 100..10000")
	} else if d < 500 {
		res.addWarn("scrape.request_delay_ms is very low (%d) and may cause rate limits.", d)
	}
	if b := out.Scrape.BatchSize; b < 1 || b > 100 {
		res.addErr("scrape.batch_size must be 1..100")
	}
	g := out.Scrape.Grid
	if g.WidthKM < 1 || g.WidthKM > 50 || g.HeightKM < 1 || g.HeightKM > 50 {
		res.addErr("scrape.grid width_km and height_km must be 1..50")
	}
	if g.RadiusMeters < 100 || g.RadiusMeters > 5000 {
		res.addErr("scrape.grid.radius_meters must be 100..5000")
	}

	if !storageTypes[out.Storage.Type] {
		res.addErr("storage.type must be one of json, sqlite, dynamodb, s3 (got %q)", out.Storage.Type)
	}
	switch out.Storage.Type {
	case "json":
		if strings.TrimSpace(out.Storage.OutputDir) == "" {
			res.addErr("storage.output_dir is required when storage.type=json")
		}
	case "dynamodb":
		if strings.TrimSpace(out.Storage.DynamoDB.Table) == "" {
			res.addErr("storage.dynamodb.table is required when storage.type=dynamodb")
		}
	case "s3":
		if strings.TrimSpace(out.Storage.S3.Bucket) == "" {
			res.addErr("storage.s3.bucket is required when storage.type=s3")
		}
	}

	if out.Schedule.Enabled {
		if _, err := cron.ParseStandard(out.Schedule.Cron); err != nil {
			res.addErr("schedule.cron is invalid: %v", err)
		}
		if strings.TrimSpace(out.Schedule.SelectionPath) == "" {
			res.addErr("schedule.selection_path is required when schedule.enabled=true")
		}
	}

	if out.Scrape.EnrichEmails {
		res.addWarn("scrape.enrich_emails fetches every clinic website and slows runs down.")
	}

	return out, res
}
