package node

import "strings"

// defaultRegions maps a region name to the voice endpoint prefixes it
// serves. Endpoints that match no prefix fall under the empty catch-all
// region.
var defaultRegions = map[string][]string{
	"asia": {"hongkong", "singapore", "sydney", "japan", "southafrica", "india"},
	"eu":   {"eu-central", "eu-west", "amsterdam", "frankfurt", "london", "madrid", "milan", "rotterdam", "russia", "stockholm", "bucharest", "warsaw"},
	"us":   {"us-central", "us-east", "us-south", "us-west", "brazil", "santiago"},
}

// RegionForEndpoint resolves a voice server endpoint to a region name.
// Returns the empty string when the endpoint matches no known prefix.
func RegionForEndpoint(endpoint string) string {
	endpoint = strings.ToLower(endpoint)
	endpoint = strings.TrimPrefix(endpoint, "vip-")

	for region, prefixes := range defaultRegions {
		for _, prefix := range prefixes {
			if strings.HasPrefix(endpoint, prefix) {
				return region
			}
		}
	}
	return ""
}
