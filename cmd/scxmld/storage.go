/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ChartRecord is a stored chart document.  Only the document is
// persisted -- never any running engine state.
type ChartRecord struct {
	// Id names the chart within the service.
	Id string `json:"id"`

	// Source is the SCXML document.
	Source string `json:"source"`

	// Datamodel names the datamodel ("" for the default).
	Datamodel string `json:"datamodel,omitempty"`
}

// Storage is a bbolt-backed chart library.
type Storage struct {
	db *bolt.DB
}

var chartsBucket = []byte("charts")

// NewStorage opens (creating if necessary) the library at the given
// filename.
func NewStorage(filename string) (*Storage, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(chartsBucket)
		return err
	}); err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

// Close closes the library.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Save writes (or overwrites) a chart record.
func (s *Storage) Save(r *ChartRecord) error {
	js, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chartsBucket).Put([]byte(r.Id), js)
	})
}

// Load reads one chart record (nil if absent).
func (s *Storage) Load(id string) (*ChartRecord, error) {
	var r *ChartRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket(chartsBucket).Get([]byte(id))
		if bs == nil {
			return nil
		}
		r = &ChartRecord{}
		return json.Unmarshal(bs, r)
	})
	return r, err
}

// LoadAll reads every stored chart record.
func (s *Storage) LoadAll() ([]*ChartRecord, error) {
	var acc []*ChartRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(chartsBucket).ForEach(func(k, v []byte) error {
			r := &ChartRecord{}
			if err := json.Unmarshal(v, r); err != nil {
				return err
			}
			acc = append(acc, r)
			return nil
		})
	})
	return acc, err
}

// Remove deletes a chart record.
func (s *Storage) Remove(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chartsBucket).Delete([]byte(id))
	})
}
