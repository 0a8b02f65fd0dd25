// Package repository defines the data-access interfaces of the
// principal store. Implementations live under internal/store; services
// depend only on these interfaces so tests can substitute fakes.
package repository
