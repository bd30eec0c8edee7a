/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"strings"
	"sync"
)

// CompositeUnit groups several units so they can be started and stopped as one.
type CompositeUnit struct {
	Units []Unit

	// StopInReverse makes Stop halt units sequentially from the last one to the first.
	// A unit should then be placed after the units it depends on.
	StopInReverse bool
}

var _ Unit = (*CompositeUnit)(nil)

// NewCompositeUnit creates a CompositeUnit that stops its units concurrently.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// NewOrderedCompositeUnit creates a CompositeUnit that stops its units in reverse order.
func NewOrderedCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units, StopInReverse: true}
}

// Start runs Start of every unit in its own goroutine and blocks until all of them return.
// As soon as one unit reports a fatal error, the rest are stopped non-gracefully
// and a CompositeUnitError is sent to fatalError.
func (cu *CompositeUnit) Start(fatalError chan<- error) {
	unitErrs := make(chan error, len(cu.Units))
	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for _, u := range cu.Units {
		go func(u Unit) {
			defer wg.Done()
			errCh := make(chan error, 1)
			u.Start(errCh)
			select {
			case err := <-errCh:
				unitErrs <- err
			default:
			}
		}(u)
	}
	returned := make(chan struct{})
	go func() {
		wg.Wait()
		close(returned)
	}()

	var errs []error
	select {
	case <-returned:
	case err := <-unitErrs:
		errs = append(errs, err)
		if stopErr := cu.Stop(false); stopErr != nil {
			errs = append(errs, stopErr.(*CompositeUnitError).UnitErrors...)
		}
	}
	errs = append(errs, drainErrors(unitErrs)...)
	if len(errs) != 0 {
		fatalError <- &CompositeUnitError{UnitErrors: errs}
	}
}

// Stop stops all units and joins their errors into a single CompositeUnitError.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	var errs []error
	if cu.StopInReverse {
		for i := len(cu.Units) - 1; i >= 0; i-- {
			if err := cu.Units[i].Stop(gracefully); err != nil {
				errs = append(errs, err)
			}
		}
	} else {
		var mu sync.Mutex
		var wg sync.WaitGroup
		wg.Add(len(cu.Units))
		for _, u := range cu.Units {
			go func(u Unit) {
				defer wg.Done()
				if err := u.Stop(gracefully); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}(u)
		}
		wg.Wait()
	}
	if len(errs) == 0 {
		return nil
	}
	return &CompositeUnitError{UnitErrors: errs}
}

// MustRegisterMetrics registers metrics of every unit that implements MetricsRegisterer.
func (cu *CompositeUnit) MustRegisterMetrics() {
	cu.eachMetricsRegisterer(MetricsRegisterer.MustRegisterMetrics)
}

// UnregisterMetrics unregisters metrics of every unit that implements MetricsRegisterer.
func (cu *CompositeUnit) UnregisterMetrics() {
	cu.eachMetricsRegisterer(MetricsRegisterer.UnregisterMetrics)
}

func (cu *CompositeUnit) eachMetricsRegisterer(fn func(MetricsRegisterer)) {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			fn(mr)
		}
	}
}

func drainErrors(ch <-chan error) []error {
	var errs []error
	for {
		select {
		case err := <-ch:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}

// CompositeUnitError holds errors returned by units of a CompositeUnit.
type CompositeUnitError struct {
	UnitErrors []error
}

func (cue *CompositeUnitError) Error() string {
	msgs := make([]string, len(cue.UnitErrors))
	for i, err := range cue.UnitErrors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap allows errors.Is and errors.As to look into the unit errors.
func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
