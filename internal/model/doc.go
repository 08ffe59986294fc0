// Package model defines the domain types shared across the client:
// stocks, market indices, portfolio holdings, transactions, and live
// price updates, plus symbol normalization and validation.
package model
