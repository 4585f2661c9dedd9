// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package namespace

import (
	"errors"
	"fmt"

	"github.com/fluxfs/fluxdir/blockio"
	"github.com/fluxfs/fluxdir/dirleaf"
	"github.com/fluxfs/fluxdir/htree"
	"github.com/fluxfs/fluxdir/nserr"
)

// translateErr maps a lower-level collaborator error onto the nserr
// boundary codes, wrapping with op for context. Errors it does not
// recognize pass through unchanged and classify as "io" in nserr.Category.
func translateErr(op string, err error) error {
	var noSpace *blockio.ErrNoSpace
	var ioErr *blockio.ErrIO
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dirleaf.ErrNotFound):
		return fmt.Errorf("namespace: %s: %w", op, nserr.ErrNotFound)
	case errors.Is(err, dirleaf.ErrNoSpace), errors.Is(err, htree.ErrTooDeep), errors.As(err, &noSpace):
		return fmt.Errorf("namespace: %s: %w", op, nserr.ErrNoSpace)
	case errors.As(err, &ioErr):
		return fmt.Errorf("namespace: %s: %v: %w", op, err, nserr.ErrIO)
	default:
		return fmt.Errorf("namespace: %s: %w", op, err)
	}
}
