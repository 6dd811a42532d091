package setup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBConfig_DSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DBConfig
		want    string
		wantErr bool
	}{
		{
			name: "explicit dsn wins",
			cfg:  DBConfig{Driver: DriverPostgres, DSN: "postgres://x", Host: "ignored"},
			want: "postgres://x",
		},
		{
			name: "mysql default port",
			cfg:  DBConfig{Driver: DriverMySQL, User: "u", Password: "p", Host: "db", Name: "vm"},
			want: "u:p@tcp(db:3306)/vm?charset=utf8mb4&parseTime=True&loc=Local",
		},
		{
			name: "postgres",
			cfg:  DBConfig{Driver: DriverPostgres, User: "u", Password: "p", Host: "db", Port: "6543", Name: "vm"},
			want: "host=db user=u password=p dbname=vm port=6543 sslmode=disable TimeZone=UTC",
		},
		{name: "missing user", cfg: DBConfig{Driver: DriverMySQL, Host: "db"}, wantErr: true},
		{name: "unknown driver", cfg: DBConfig{Driver: "oracle", User: "u", Host: "db"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.dsn()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDBConfig_Enabled(t *testing.T) {
	assert.False(t, DBConfig{Driver: DriverMySQL}.Enabled())
	assert.True(t, DBConfig{Host: "localhost"}.Enabled())
	assert.True(t, DBConfig{DSN: "x"}.Enabled())
}
