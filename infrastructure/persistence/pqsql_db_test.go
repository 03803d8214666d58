package persistence

import (
	"testing"

	"yt-pipeline/infrastructure/configuration"

	"github.com/stretchr/testify/assert"
)

func TestNewPostgreSQLDb(t *testing.T) {
	// No database is reachable in unit tests; the attempt must fail cleanly.
	db, err := NewPostgreSQLDB()
	if err != nil {
		assert.Nil(t, db)
		t.Logf("Expected behavior (connection failed in test env): %v", err)
		return
	}
	defer db.Close()
	assert.NoError(t, db.Ping())
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(configuration.Db{Name: "leases", Host: "db", Port: "5432", User: "u", Password: "p"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=leases sslmode=disable", dsn)
}

func TestMSSQLDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  configuration.Db
		want string
	}{
		{
			name: "remote with credentials",
			cfg:  configuration.Db{Name: "leases", Host: "sql.example.com", Port: "1433", User: "sa", Password: "pw"},
			want: "sqlserver://sa:pw@sql.example.com:1433?database=leases&encrypt=true",
		},
		{
			name: "local container trusts certificate",
			cfg:  configuration.Db{Host: "localhost", Port: "1433", User: "sa"},
			want: "sqlserver://sa@localhost:1433?TrustServerCertificate=true&encrypt=true",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mssqlDSN(tt.cfg))
		})
	}
}
