package db

import (
	"context"
	"fmt"

	"meshgate/internal/models"

	"github.com/jackc/pgx/v5"
)

// LoadRules fetches all rules
func (d *DB) LoadRules(ctx context.Context) ([]models.RuleRecord, error) {
	rows, err := d.pool.Query(ctx, `SELECT rid, name, owner, status, creationtime, lasttriggered,
		timestriggered, periodic, conditions, actions FROM rules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.RuleRecord
	for rows.Next() {
		var r models.RuleRecord
		var times int64
		if err := rows.Scan(&r.ID, &r.Name, &r.Owner, &r.Status, &r.CreationTime, &r.LastTriggered,
			&times, &r.Periodic, &r.Conditions, &r.Actions); err != nil {
			return nil, err
		}
		r.TimesTriggered = uint32(times)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveRules upserts the given rules in one transaction
func (d *DB) SaveRules(ctx context.Context, records []models.RuleRecord) error {
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`INSERT INTO rules (rid, name, owner, status, creationtime, lasttriggered,
			timestriggered, periodic, conditions, actions)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (rid) DO UPDATE SET name = $2, owner = $3, status = $4, creationtime = $5,
			lasttriggered = $6, timestriggered = $7, periodic = $8, conditions = $9, actions = $10`,
			r.ID, r.Name, r.Owner, r.Status, r.CreationTime, r.LastTriggered,
			int64(r.TimesTriggered), r.Periodic, r.Conditions, r.Actions)
	}
	return d.sendBatch(ctx, batch)
}

// DeleteRules removes rules by id
func (d *DB) DeleteRules(ctx context.Context, ids []string) error {
	_, err := d.pool.Exec(ctx, "DELETE FROM rules WHERE rid = ANY($1)", ids)
	return err
}

// LoadApiAuths fetches all whitelisted api keys
func (d *DB) LoadApiAuths(ctx context.Context) ([]models.ApiAuth, error) {
	rows, err := d.pool.Query(ctx, "SELECT apikey, devicetype, useragent, createdate, lastusedate FROM auth")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auths []models.ApiAuth
	for rows.Next() {
		var a models.ApiAuth
		if err := rows.Scan(&a.APIKey, &a.DeviceType, &a.UserAgent, &a.CreateDate, &a.LastUseDate); err != nil {
			return nil, err
		}
		auths = append(auths, a)
	}
	return auths, rows.Err()
}

// SaveApiAuths upserts normal keys and removes deleted ones
func (d *DB) SaveApiAuths(ctx context.Context, auths []models.ApiAuth) error {
	batch := &pgx.Batch{}
	for _, a := range auths {
		if a.State == models.ApiAuthDeleted {
			batch.Queue("DELETE FROM auth WHERE apikey = $1", a.APIKey)
			continue
		}
		batch.Queue(`INSERT INTO auth (apikey, devicetype, useragent, createdate, lastusedate)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (apikey) DO UPDATE SET devicetype = $2, useragent = $3, lastusedate = $5`,
			a.APIKey, a.DeviceType, a.UserAgent, a.CreateDate, a.LastUseDate)
	}
	return d.sendBatch(ctx, batch)
}

// LoadConfig fetches the gateway key/value configuration
func (d *DB) LoadConfig(ctx context.Context) (map[string]string, error) {
	rows, err := d.pool.Query(ctx, "SELECT key, value FROM config")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cfg := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		cfg[k] = v
	}
	return cfg, rows.Err()
}

// SaveConfig upserts gateway configuration values
func (d *DB) SaveConfig(ctx context.Context, values map[string]string) error {
	batch := &pgx.Batch{}
	for k, v := range values {
		batch.Queue("INSERT INTO config (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = $2", k, v)
	}
	return d.sendBatch(ctx, batch)
}

func (d *DB) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return tx.Commit(ctx)
}
