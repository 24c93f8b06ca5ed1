package storage

import "context"

func InitStore(dbConnStr string) (*PostgresStore, error) {
	store, err := NewPostgresStore(dbConnStr)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// InitStores opens the routing store and the sample store on the same database.
func InitStores(ctx context.Context, dbConnStr string) (*PostgresStore, *PgxSampleStore, error) {
	store, err := InitStore(dbConnStr)
	if err != nil {
		return nil, nil, err
	}
	samples, err := NewPgxSampleStore(ctx, dbConnStr)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, samples, nil
}
