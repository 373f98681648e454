package catalog

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// RegionRecord is one row of the regions reference table. Members and
// successors are stored JSON-encoded in the database; members hold region
// codes, successors hold country names.
type RegionRecord struct {
	Code         string
	Name         string
	RegionType   string // "continent" | "country" | "custom"
	IsHistorical bool
	Members      []string
	Successors   []string
}

// IncomeGroupRecord is one row of the income-groups table. Year is nil for
// the "latest classification" variant.
type IncomeGroupRecord struct {
	Country        string
	Year           *int
	Classification string
}

// PopulationRecord is one row of the population table.
type PopulationRecord struct {
	Country    string
	Year       int
	Population float64
}

// Catalog is a handle to the reference catalog. Open it once per process
// and inject it into consumers; the package keeps no global state.
type Catalog struct {
	db *sql.DB
}

// Open opens the reference catalog at the given path.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "catalog: exec %s", pragma)
		}
	}
	return &Catalog{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS regions (
	code          TEXT PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	region_type   TEXT NOT NULL,
	is_historical INTEGER NOT NULL DEFAULT 0,
	members       TEXT NOT NULL DEFAULT '[]',
	successors    TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS income_groups (
	country        TEXT NOT NULL,
	year           INTEGER,
	classification TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS population (
	country    TEXT NOT NULL,
	year       INTEGER NOT NULL,
	population REAL NOT NULL,
	PRIMARY KEY (country, year)
);

CREATE INDEX IF NOT EXISTS idx_income_groups_country ON income_groups(country);
`

// EnsureSchema creates the catalog tables if they do not exist.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return eris.Wrap(err, "catalog: ensure schema")
	}
	return nil
}

// Regions loads all region definitions.
func (c *Catalog) Regions(ctx context.Context) ([]RegionRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT code, name, region_type, is_historical, members, successors FROM regions ORDER BY code")
	if err != nil {
		return nil, eris.Wrap(err, "catalog: query regions")
	}
	defer rows.Close()

	var out []RegionRecord
	for rows.Next() {
		var r RegionRecord
		var members, successors string
		if err := rows.Scan(&r.Code, &r.Name, &r.RegionType, &r.IsHistorical, &members, &successors); err != nil {
			return nil, eris.Wrap(err, "catalog: scan region")
		}
		if err := json.Unmarshal([]byte(members), &r.Members); err != nil {
			return nil, eris.Wrapf(err, "catalog: decode members of %s", r.Code)
		}
		if err := json.Unmarshal([]byte(successors), &r.Successors); err != nil {
			return nil, eris.Wrapf(err, "catalog: decode successors of %s", r.Code)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "catalog: iterate regions")
}

// IncomeGroups loads all income-group classification rows.
func (c *Catalog) IncomeGroups(ctx context.Context) ([]IncomeGroupRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT country, year, classification FROM income_groups ORDER BY country, year")
	if err != nil {
		return nil, eris.Wrap(err, "catalog: query income groups")
	}
	defer rows.Close()

	var out []IncomeGroupRecord
	for rows.Next() {
		var r IncomeGroupRecord
		var year sql.NullInt64
		if err := rows.Scan(&r.Country, &year, &r.Classification); err != nil {
			return nil, eris.Wrap(err, "catalog: scan income group")
		}
		if year.Valid {
			y := int(year.Int64)
			r.Year = &y
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "catalog: iterate income groups")
}

// Population loads all population rows.
func (c *Catalog) Population(ctx context.Context) ([]PopulationRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT country, year, population FROM population ORDER BY country, year")
	if err != nil {
		return nil, eris.Wrap(err, "catalog: query population")
	}
	defer rows.Close()

	var out []PopulationRecord
	for rows.Next() {
		var r PopulationRecord
		if err := rows.Scan(&r.Country, &r.Year, &r.Population); err != nil {
			return nil, eris.Wrap(err, "catalog: scan population")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "catalog: iterate population")
}

// InsertRegion adds or replaces a region definition.
func (c *Catalog) InsertRegion(ctx context.Context, r RegionRecord) error {
	members, err := json.Marshal(r.Members)
	if err != nil {
		return eris.Wrapf(err, "catalog: encode members of %s", r.Code)
	}
	successors, err := json.Marshal(r.Successors)
	if err != nil {
		return eris.Wrapf(err, "catalog: encode successors of %s", r.Code)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO regions (code, name, region_type, is_historical, members, successors)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.Code, r.Name, r.RegionType, r.IsHistorical, string(members), string(successors))
	return eris.Wrapf(err, "catalog: insert region %s", r.Code)
}

// InsertIncomeGroup adds an income-group classification row.
func (c *Catalog) InsertIncomeGroup(ctx context.Context, r IncomeGroupRecord) error {
	var year any
	if r.Year != nil {
		year = *r.Year
	}
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO income_groups (country, year, classification) VALUES (?, ?, ?)",
		r.Country, year, r.Classification)
	return eris.Wrapf(err, "catalog: insert income group for %s", r.Country)
}

// InsertPopulation adds or replaces a population row.
func (c *Catalog) InsertPopulation(ctx context.Context, r PopulationRecord) error {
	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO population (country, year, population) VALUES (?, ?, ?)",
		r.Country, r.Year, r.Population)
	return eris.Wrapf(err, "catalog: insert population for %s", r.Country)
}
