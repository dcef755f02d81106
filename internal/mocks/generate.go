package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Gateway --dir ../domain/profile --output domain/profile --outpkg profilemock --filename gateway_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Sender --dir ../domain/telemetry --output domain/telemetry --outpkg telemetrymock --filename sender_mock.go
