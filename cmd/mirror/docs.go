package main

//go:generate swag init -g cmd/mirror/main.go -o docs

// @title           OracleX Event Mirror API
// @version         0.1.0
// @description     Read API over on-chain prediction market data mirrored from BSC.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
