// Package health implements the health monitor: one supervised probe loop
// per registered service, the binary health state machine (Next), and
// transition notifications for subscribers.
package health
