// Package clock is the time source for record timestamps and roundtrip timing.
//
// Kafka records and the roundtrip report read time through Clocker so tests
// can pin it with Fixed.
package clock
