package postgres

import "dqprobe/internal/storage"

func init() {
	storage.Register("postgres", New)
}
