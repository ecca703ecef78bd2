// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package engine

import (
	"fmt"
	"log"
	"os"

	"sigs.k8s.io/yaml"
)

// defaultWorkers is used when Options.Workers is unset, within the
// 4-16 range spec.md's Engine contract calls for.
const defaultWorkers = 8

// Options configures a Connect call. The zero value is valid; unset
// fields take documented defaults.
type Options struct {
	// Workers is the fixed size of the latest-query thread pool.
	// Defaults to 8 if zero or negative.
	Workers int `json:"workers,omitempty"`

	// Logger receives lifecycle and error messages. Defaults to a
	// logger writing to stderr if nil.
	Logger *log.Logger `json:"-"`
}

// LoadOptions reads Options from a YAML file, following the same
// sigs.k8s.io/yaml round-trip-through-JSON convention used throughout
// the configuration surface.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("engine: %w: %v", ErrIO, err)
	}
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("engine: %w: %v", ErrInvalidSchema, err)
	}
	return opts, nil
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.Logger == nil {
		o.Logger = log.New(os.Stderr, "vintsdb: ", log.LstdFlags)
	}
	return o
}
