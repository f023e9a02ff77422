package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

type appListDto struct {
	AppList []struct {
		AppInfo models.AppDescriptor `json:"appInfo"`
	} `json:"appList"`
}

type Filter struct {
	AppName        string
	AppProvider    string
	AppSoftVersion string
}

func (f Filter) match(d models.AppDescriptor) bool {
	return (f.AppName == "" || f.AppName == d.AppName) &&
		(f.AppProvider == "" || f.AppProvider == d.AppProvider) &&
		(f.AppSoftVersion == "" || f.AppSoftVersion == d.AppSoftVersion)
}

// Static is immutable after load.
type Static struct {
	apps map[models.AppDID]models.AppDescriptor
}

func New(apps ...models.AppDescriptor) (*Static, error) {
	c := &Static{apps: make(map[models.AppDID]models.AppDescriptor, len(apps))}
	for _, app := range apps {
		if app.AppDID == "" {
			return nil, fmt.Errorf("application %q has empty appDId", app.AppName)
		}
		if _, dup := c.apps[app.AppDID]; dup {
			return nil, fmt.Errorf("duplicated appDId %s", app.AppDID)
		}
		c.apps[app.AppDID] = app
	}
	return c, nil
}

// Load reads {"appList":[{"appInfo":{...}}]} file.
func Load(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read app list %s: %w", path, err)
	}
	dto := appListDto{}
	if err = json.Unmarshal(raw, &dto); err != nil {
		return nil, fmt.Errorf("failed to decode app list %s: %w", path, err)
	}
	apps := make([]models.AppDescriptor, 0, len(dto.AppList))
	for _, item := range dto.AppList {
		apps = append(apps, item.AppInfo)
	}
	return New(apps...)
}

func (c *Static) Get(appDID models.AppDID) (models.AppDescriptor, bool) {
	app, ok := c.apps[appDID]
	return app, ok
}

func (c *Static) List(filter Filter) []models.AppDescriptor {
	result := make([]models.AppDescriptor, 0, len(c.apps))
	for _, app := range c.apps {
		if filter.match(app) {
			result = append(result, app)
		}
	}
	slices.SortFunc(result, func(a, b models.AppDescriptor) int {
		return strings.Compare(string(a.AppDID), string(b.AppDID))
	})
	return result
}
