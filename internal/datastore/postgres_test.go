package datastore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSelect(t *testing.T) {
	pg := NewPostgres(nil, testRegistry())
	tenant := uuid.New()

	sql, args, err := pg.buildSelect(Query{
		Entity:  entityAssets,
		Filter:  Filter{"tenant_id": tenant, "name": In{"crane", "lift"}},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   10,
		Offset:  20,
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "id", "tenant_id", "name", "created_at" FROM "assets" WHERE "name" = ANY($1) AND "tenant_id" = $2 ORDER BY "created_at" DESC LIMIT $3 OFFSET $4`,
		sql)
	assert.Equal(t, []any{[]any{"crane", "lift"}, tenant, 10, 20}, args)
}

func TestBuildWriteStatements(t *testing.T) {
	pg := NewPostgres(nil, testRegistry())
	tenant := uuid.New()

	sql, args, err := pg.buildInsert(entityAssets, Record{"tenant_id": tenant, "name": "crane"})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "assets" ("name", "tenant_id") VALUES ($1, $2) RETURNING "id", "tenant_id", "name", "created_at"`,
		sql)
	assert.Equal(t, []any{"crane", tenant}, args)

	sql, args, err = pg.buildUpdate(entityAssets, Filter{"tenant_id": tenant, "id": nil}, Record{"name": "lift"})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "assets" SET "name" = $1 WHERE "id" IS NULL AND "tenant_id" = $2`, sql)
	assert.Equal(t, []any{"lift", tenant}, args)

	sql, _, err = pg.buildDelete(entityAssets, Filter{"tenant_id": tenant, "id": In{}})
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "assets" WHERE FALSE AND "tenant_id" = $1`, sql)
}

func TestBuildRejectsUnknownColumns(t *testing.T) {
	pg := NewPostgres(nil, testRegistry())

	_, _, err := pg.buildSelect(Query{Entity: entityAssets, Filter: Filter{"name; DROP TABLE assets": 1}})
	require.Error(t, err)

	_, _, err = pg.buildSelect(Query{Entity: entityAssets, OrderBy: "secret"})
	require.Error(t, err)

	_, _, err = pg.buildInsert(entityAssets, Record{"owner": "x"})
	require.Error(t, err)

	_, _, err = pg.buildCount(Query{Entity: "ledgers"})
	require.Error(t, err)
}
