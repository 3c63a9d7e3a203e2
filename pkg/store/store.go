package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/planner"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("no planning info for hour")

// Store keeps the hourly planning info in SQLite. NaN values are stored as NULL.
type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// a single connection keeps :memory: databases alive
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS planning_info (
		hour INTEGER PRIMARY KEY,
		pv REAL,
		battery_soc REAL,
		battery_flow REAL,
		price REAL,
		grid REAL,
		temp REAL,
		bev REAL,
		heatpump REAL,
		house REAL,
		restriction TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return fmt.Errorf("error creating schema: %w", err)
	}
	return nil
}

// Save stores info, replacing an earlier row of the same hour.
func (s *Store) Save(ctx context.Context, info planner.Info) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO planning_info
		(hour, pv, battery_soc, battery_flow, price, grid, temp, bev, heatpump, house, restriction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.Hour,
		nullable(info.PV),
		nullable(info.BatterySOC),
		nullable(info.BatteryFlow),
		nullable(info.Price),
		nullable(info.Grid),
		nullable(info.Temp),
		nullable(info.BEV),
		nullable(info.Heatpump),
		nullable(info.House),
		info.Restriction.String(),
	)
	if err != nil {
		return fmt.Errorf("error saving planning info %d: %w", info.Hour, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, hour int64) (planner.Info, error) {
	rows, err := s.query(ctx, `WHERE hour = ?`, hour)
	if err != nil {
		return planner.Info{}, err
	}
	if len(rows) == 0 {
		return planner.Info{}, fmt.Errorf("%w %d", ErrNotFound, hour)
	}
	return rows[0], nil
}

// Range returns the rows with from <= hour < to in chronological order.
func (s *Store) Range(ctx context.Context, from, to int64) ([]planner.Info, error) {
	return s.query(ctx, `WHERE hour >= ? AND hour < ? ORDER BY hour`, from, to)
}

func (s *Store) query(ctx context.Context, where string, args ...interface{}) ([]planner.Info, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		hour, pv, battery_soc, battery_flow, price, grid, temp, bev, heatpump, house, restriction
		FROM planning_info `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying planning info: %w", err)
	}
	defer rows.Close()

	var infos []planner.Info
	for rows.Next() {
		var info planner.Info
		var pv, soc, flow, price, grid, temp, bev, hp, house sql.NullFloat64
		var restriction string
		err := rows.Scan(&info.Hour, &pv, &soc, &flow, &price, &grid, &temp, &bev, &hp, &house, &restriction)
		if err != nil {
			return nil, fmt.Errorf("error scanning planning info: %w", err)
		}
		info.PV = value(pv)
		info.BatterySOC = value(soc)
		info.BatteryFlow = value(flow)
		info.Price = value(price)
		info.Grid = value(grid)
		info.Temp = value(temp)
		info.BEV = value(bev)
		info.Heatpump = value(hp)
		info.House = value(house)
		info.Restriction, err = device.ParseRestriction(restriction)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func value(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
