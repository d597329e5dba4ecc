package classify

import "errors"

// ErrContractViolation marks a classifier response that broke the batch
// contract: wrong assignment count, indices that are not a permutation of the
// input, or a reference to an intent absent from the snapshot the classifier
// was given. Fatal for the whole batch; nothing is committed.
var ErrContractViolation = errors.New("classifier contract violation")
