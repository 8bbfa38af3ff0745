package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// identityTypes are the schema.org types that establish site identity
// for E-E-A-T purposes.
var identityTypes = map[string]bool{
	"Organization":        true,
	"LocalBusiness":       true,
	"Person":              true,
	"Corporation":         true,
	"OnlineBusiness":      true,
	"ProfessionalService": true,
}

// extractSchema finds structured data in JSON-LD blocks and microdata
// attributes, and evaluates whether the page carries a complete
// identity entity (Organization/Person with name, url and either logo
// or sameAs).
func extractSchema(doc *goquery.Document) SchemaSignal {
	signal := SchemaSignal{}
	seen := make(map[string]struct{})

	addType := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		// Strip a schema.org context prefix if the type is a full IRI.
		if idx := strings.LastIndex(t, "/"); idx >= 0 && strings.Contains(t, "schema.org") {
			t = t[idx+1:]
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		signal.Types = append(signal.Types, t)
	}

	var bestMissing []string
	identityFound := false

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var raw interface{}
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return
		}
		for _, entity := range flattenEntities(raw) {
			for _, t := range entityTypes(entity) {
				addType(t)
				if identityTypes[t] && !identityFound {
					missing := missingIdentityFields(entity)
					if len(missing) == 0 {
						identityFound = true
						bestMissing = nil
					} else if bestMissing == nil || len(missing) < len(bestMissing) {
						bestMissing = missing
					}
				}
			}
		}
	})

	doc.Find("[itemscope][itemtype]").Each(func(_ int, s *goquery.Selection) {
		itemtype, _ := s.Attr("itemtype")
		addType(itemtype)
	})

	signal.IsIdentitySchema = identityFound
	if !identityFound {
		signal.MissingFields = bestMissing
	}
	return signal
}

// flattenEntities unwraps JSON-LD arrays and @graph containers into a
// flat entity list.
func flattenEntities(raw interface{}) []map[string]interface{} {
	var entities []map[string]interface{}
	switch v := raw.(type) {
	case []interface{}:
		for _, item := range v {
			entities = append(entities, flattenEntities(item)...)
		}
	case map[string]interface{}:
		if graph, ok := v["@graph"]; ok {
			entities = append(entities, flattenEntities(graph)...)
		}
		if _, ok := v["@type"]; ok {
			entities = append(entities, v)
		}
	}
	return entities
}

func entityTypes(entity map[string]interface{}) []string {
	switch t := entity["@type"].(type) {
	case string:
		return []string{t}
	case []interface{}:
		var types []string
		for _, item := range t {
			if s, ok := item.(string); ok {
				types = append(types, s)
			}
		}
		return types
	}
	return nil
}

// missingIdentityFields reports which of the required identity fields
// the entity lacks. An identity entity needs name, url and at least one
// of logo or sameAs.
func missingIdentityFields(entity map[string]interface{}) []string {
	var missing []string
	if !hasValue(entity, "name") {
		missing = append(missing, "name")
	}
	if !hasValue(entity, "url") {
		missing = append(missing, "url")
	}
	if !hasValue(entity, "logo") && !hasValue(entity, "sameAs") {
		missing = append(missing, "logo or sameAs")
	}
	return missing
}

func hasValue(entity map[string]interface{}, key string) bool {
	v, ok := entity[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) != ""
	case []interface{}:
		return len(t) > 0
	}
	return true
}
