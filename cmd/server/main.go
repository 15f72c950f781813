package main

import (
	_ "github.com/dwarvesf/custody-backend/docs"
	"github.com/dwarvesf/custody-backend/internal/server"
)

// @title Custody Backend API
// @version 1.0
// @description Deposits and withdrawals against a custodial USD balance, reconciled against the chain.
// @BasePath /api/v1
func main() {
	server.Init()
}
