package kelo

// MaxCollisions is the number of live records a prefix bucket may hold
// before Compact migrates it to a collision sidecar (spec.md §4.6; 3
// in the reference implementation).
const MaxCollisions = 3

// Compact groups the merged view by prefix and migrates any prefix
// holding at least MaxCollisions live records off the hot path: it
// creates that prefix's collision sidecar, copies every live
// (key, value) pair into it, marks the prefix collided, and issues
// delete operations through the flush pipeline for every migrated key
// so storage no longer duplicates data the sidecar now owns.
func (db *DB) Compact() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}

	groups := make(map[uint32][]KV)
	var iterErr error
	db.iterateLocked(func(kv KV, err error) bool {
		if err != nil {
			iterErr = err
			return false
		}
		p := prefixOf(kv.Key, db.cfg.opts.KeyIndexBits)
		groups[p] = append(groups[p], KV{
			Key:   append([]byte(nil), kv.Key...),
			Value: append([]byte(nil), kv.Value...),
		})
		return true
	})
	if iterErr != nil {
		return iterErr
	}

	for p, kvs := range groups {
		if len(kvs) < MaxCollisions || db.meta.Collided.Has(p) {
			continue
		}
		db.cfg.logger.Warn("migrating hot prefix to collision sidecar", "prefix", p, "records", len(kvs))
		if err := db.migratePrefix(p, kvs); err != nil {
			return err
		}
	}
	return nil
}

// migratePrefix moves one prefix's live records into its collision
// sidecar and deletes them out of storage through the flush pipeline.
func (db *DB) migratePrefix(p uint32, kvs []KV) error {
	sc, err := db.sidecarFor(p)
	if err != nil {
		return err
	}
	for _, kv := range kvs {
		if err := sc.put(kv.Key, kv.Value); err != nil {
			return err
		}
	}
	db.meta.Collided.Set(p)

	toDelete := make([]stagedOp, 0, len(kvs))
	for _, kv := range kvs {
		toDelete = append(toDelete, stagedOp{tag: OpDelete, key: kv.Key})
	}

	overwrites, err := planOperations(db.dataMap.data, db.meta, sortOpsByKeyLastWriteWins(toDelete), &db.cfg)
	if err != nil {
		return err
	}
	if len(overwrites) > 0 {
		if err := writeFlushFile(db.dir, overwrites, db.meta); err != nil {
			return err
		}
		meta, err := applyFlushFile(db.dir, db.dataMap, db.metaMap, db.cfg.numPrefixes)
		if err != nil {
			return err
		}
		db.meta = meta
		return nil
	}

	// Nothing to reclaim in storage (the migrated keys lived only in
	// the journal), but the collided bit still needs to be durable.
	db.cfg.logger.Debug("prefix migrated with nothing to reclaim in storage", "prefix", p)
	metaBytes := db.meta.Encode()
	copy(db.metaMap.data[:len(metaBytes)], metaBytes)
	return db.metaMap.sync()
}
