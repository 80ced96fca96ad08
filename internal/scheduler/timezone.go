package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"reward_engine/internal/logger"
)

// TimezoneCatalog enumerates IANA zones and converts instants into their wall clock.
type TimezoneCatalog interface {
	ListAll() ([]string, error)
	LocalTime(zone string, at time.Time) (time.Time, error)
}

// StaticCatalog serves a fixed set of zones.
type StaticCatalog struct {
	names []string
	locs  map[string]*time.Location
}

// NewStaticCatalog builds a catalog from already resolved locations.
func NewStaticCatalog(locs map[string]*time.Location) *StaticCatalog {
	c := &StaticCatalog{locs: make(map[string]*time.Location, len(locs))}
	for name, loc := range locs {
		c.names = append(c.names, name)
		c.locs[name] = loc
	}
	sort.Strings(c.names)
	return c
}

// LoadStaticCatalog resolves names with time.LoadLocation. Unknown names are an error.
func LoadStaticCatalog(names []string) (*StaticCatalog, error) {
	locs := make(map[string]*time.Location, len(names))
	for _, name := range names {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("load zone %q: %w", name, err)
		}
		locs[name] = loc
	}
	return NewStaticCatalog(locs), nil
}

func (c *StaticCatalog) ListAll() ([]string, error) {
	return append([]string(nil), c.names...), nil
}

func (c *StaticCatalog) LocalTime(zone string, at time.Time) (time.Time, error) {
	loc, ok := c.locs[zone]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown zone %q", zone)
	}
	return at.In(loc), nil
}

var zoneinfoDirs = []string{
	"/usr/share/zoneinfo",
	"/usr/share/lib/zoneinfo",
	"/usr/lib/locale/TZ",
}

// ZoneinfoCatalog lists every zone found in the system zoneinfo tree.
// The list is read once; locations are cached as they are used.
type ZoneinfoCatalog struct {
	dirs []string

	once  sync.Once
	names []string
	err   error

	locs locationCache
}

// NewZoneinfoCatalog searches $ZONEINFO first, then the usual system locations.
func NewZoneinfoCatalog() *ZoneinfoCatalog {
	var dirs []string
	if dir := os.Getenv("ZONEINFO"); dir != "" {
		dirs = append(dirs, dir)
	}
	return &ZoneinfoCatalog{dirs: append(dirs, zoneinfoDirs...)}
}

func (c *ZoneinfoCatalog) ListAll() ([]string, error) {
	c.once.Do(func() {
		for _, dir := range c.dirs {
			names, err := scanZoneinfo(dir)
			if err != nil || len(names) == 0 {
				continue
			}
			c.names = names
			return
		}
		c.err = errors.New("no zoneinfo database found")
	})
	return c.names, c.err
}

func (c *ZoneinfoCatalog) LocalTime(zone string, at time.Time) (time.Time, error) {
	loc, err := c.locs.load(zone)
	if err != nil {
		return time.Time{}, err
	}
	return at.In(loc), nil
}

// ZoneLister reports the zones users are registered in.
type ZoneLister interface {
	ListTimezones(ctx context.Context) ([]string, error)
}

// UserZoneCatalog lists the zones stored on users, so it needs no zoneinfo
// tree on disk. Names time.LoadLocation rejects are skipped.
type UserZoneCatalog struct {
	src     ZoneLister
	timeout time.Duration
	locs    locationCache
}

func NewUserZoneCatalog(src ZoneLister) *UserZoneCatalog {
	return &UserZoneCatalog{src: src, timeout: 10 * time.Second}
}

func (c *UserZoneCatalog) ListAll() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	names, err := c.src.ListTimezones(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user zones: %w", err)
	}

	valid := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := c.locs.load(name); err != nil {
			logger.Component("timezone_catalog").Warn("ignoring unknown zone", "zone", name, "error", err)
			continue
		}
		valid = append(valid, name)
	}
	return valid, nil
}

func (c *UserZoneCatalog) LocalTime(zone string, at time.Time) (time.Time, error) {
	loc, err := c.locs.load(zone)
	if err != nil {
		return time.Time{}, err
	}
	return at.In(loc), nil
}

// SelectCatalog prefers the system zoneinfo tree and falls back to the zones
// stored on users when the tree is missing, as in scratch images.
func SelectCatalog(zoneinfo *ZoneinfoCatalog, users ZoneLister) TimezoneCatalog {
	zones, err := zoneinfo.ListAll()
	if err == nil {
		logger.Component("timezone_catalog").Info("using system zoneinfo", "zones", len(zones))
		return zoneinfo
	}
	logger.Component("timezone_catalog").Warn("system zoneinfo unavailable, listing zones from users", "error", err)
	return NewUserZoneCatalog(users)
}

// locationCache memoizes time.LoadLocation.
type locationCache struct {
	m sync.Map // zone name -> *time.Location
}

func (c *locationCache) load(zone string) (*time.Location, error) {
	if v, ok := c.m.Load(zone); ok {
		return v.(*time.Location), nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, err
	}
	c.m.Store(zone, loc)
	return loc, nil
}

func scanZoneinfo(root string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if d.IsDir() {
			// posix/ and right/ duplicate the main tree
			if rel == "posix" || rel == "right" {
				return filepath.SkipDir
			}
			return nil
		}
		name := filepath.ToSlash(rel)
		if !isZoneName(name) {
			return nil
		}
		if _, err := time.LoadLocation(name); err == nil {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// isZoneName filters out the tables and helper files shipped next to the zones.
func isZoneName(name string) bool {
	if name == "" || strings.Contains(name, ".") {
		return false
	}
	first := name[0]
	if first < 'A' || first > 'Z' {
		return false
	}
	switch name {
	case "Factory", "posixrules", "localtime":
		return false
	}
	return true
}
