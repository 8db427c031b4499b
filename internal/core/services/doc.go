// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Every collaborator is passed in explicitly so tests substitute the
// in-memory adapters and fake embedders.
package services
