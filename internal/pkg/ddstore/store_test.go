package ddstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddprofile"
)

func testColumn(source, column string) *ddprofile.Column {
	return &ddprofile.Column{
		Dataset:     "ds",
		Source:      source,
		Column:      column,
		Type:        ddprofile.Integer,
		Total:       10,
		Nulls:       1,
		Cardinality: 9,
		Numeric:     &ddprofile.NumericStats{Min: 1, Max: 9, Mean: 5},
		ProfiledAt:  time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestParseKind(t *testing.T) {
	var kindTests = []struct {
		input    string
		expected Kind
	}{
		{"elasticsearch", Elastic},
		{"Postgres", Postgres},
		{"sqlite3", SQLite},
		{"file", File},
		{"null", Null},
	}

	for _, test := range kindTests {
		kind, err := ParseKind(test.input)
		assert.Nil(t, err)
		assert.Equal(t, test.expected, kind)
	}

	_, err := ParseKind("cassandra")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNewUnknownKind(t *testing.T) {
	store, err := New(context.Background(), Config{Kind: "cassandra"})
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Nil(t, store)
}

func TestNewRequiresSettings(t *testing.T) {
	for _, kind := range []Kind{Postgres, SQLite, File} {
		_, err := New(context.Background(), Config{Kind: kind})
		assert.NotNil(t, err, "kind %s", kind)
	}
}

func TestNullStore(t *testing.T) {
	store, err := New(context.Background(), Config{Kind: Null})
	require.Nil(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.Nil(t, store.Write(context.Background(), testColumn("s", fmt.Sprint(i))))
		}(i)
	}
	wg.Wait()

	assert.Nil(t, store.TearDown(context.Background()))
	assert.Equal(t, int64(20), store.(*NullStore).Count())
}
