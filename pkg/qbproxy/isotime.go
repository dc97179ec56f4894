package qbproxy

import "time"

const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// injectISOTimes adds iso_created_at and iso_updated_at next to numeric
// unix timestamps, on the object itself or on each of its items
func injectISOTimes(data interface{}) interface{} {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return data
	}

	if _, ok := obj["created_at"]; ok {
		addISOTimes(obj)
		return obj
	}

	if items, ok := obj["items"].([]interface{}); ok {
		for _, item := range items {
			if m, ok := item.(map[string]interface{}); ok {
				addISOTimes(m)
			}
		}
	}
	return obj
}

func addISOTimes(obj map[string]interface{}) {
	for _, field := range []string{"created_at", "updated_at"} {
		if ts, ok := obj[field].(float64); ok {
			obj["iso_"+field] = time.Unix(int64(ts), 0).UTC().Format(isoLayout)
		}
	}
}
