// Package model holds the domain types shared by repositories, services and
// handlers. Types here carry no behaviour beyond small invariants
// (validation of enum values, derived flags).
package model
