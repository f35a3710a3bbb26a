// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fm

import "github.com/juju/errors"

var (
	// ErrDimensionMismatch is returned if the number of features of an input differs from
	// the number of features a model was fitted on.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrNumericalDivergence is returned if parameters or caches become non-finite during fitting.
	ErrNumericalDivergence = errors.New("numerical divergence")
)
