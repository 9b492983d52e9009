package api

import (
	"strings"

	"meshgate/internal/resource"
	"meshgate/internal/web/middleware"

	"github.com/gin-gonic/gin"
)

// ResourceReader lists the attributes of a category
type ResourceReader interface {
	Items(c resource.Category) []resource.Item
}

var resourceCategories = []resource.Category{
	resource.CategorySensors,
	resource.CategoryLights,
	resource.CategoryGroups,
	resource.CategoryConfig,
}

func RegisterResourceRoutes(r *gin.Engine, middleware *middleware.MiddlewareManager, store ResourceReader) {
	resources := r.Group("/api/:apikey")
	resources.Use(middleware.RequireApikey())
	for _, category := range resourceCategories {
		resources.GET("/"+category.String(), func(c *gin.Context) {
			c.JSON(200, groupItems(category, store.Items(category)))
		})
	}
}

// groupItems nests attribute values by resource id and suffix path, e.g.
// /sensors/1/state/presence becomes {"1": {"state": {"presence": true}}}.
// Config attributes have no id and drop the leading "config" segment.
func groupItems(category resource.Category, items []resource.Item) map[string]any {
	out := map[string]any{}
	for _, item := range items {
		a := resource.SplitAddress(item.Address)
		root := out
		if category.InstanceScoped() {
			if a.ID == "" {
				continue
			}
			m, ok := out[a.ID].(map[string]any)
			if !ok {
				m = map[string]any{}
				out[a.ID] = m
			}
			root = m
		}
		path := strings.Split(a.Suffix, "/")
		if category == resource.CategoryConfig && len(path) > 1 && path[0] == "config" {
			path = path[1:]
		}
		insert(root, path, item.Value.Any())
	}
	return out
}

func insert(m map[string]any, path []string, v any) {
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}
