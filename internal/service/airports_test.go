package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type airportsMock struct {
	codes []string
	err   error
}

func (a airportsMock) ActiveAirports(ctx context.Context) ([]string, error) { return a.codes, a.err }

func TestAirportChain(t *testing.T) {
	ctx := context.Background()

	got, err := AirportChain{airportsMock{}, airportsMock{codes: []string{"SGN", "HAN"}}}.ActiveAirports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"SGN", "HAN"}, got)

	got, err = AirportChain{airportsMock{codes: []string{"DAD"}}, airportsMock{codes: []string{"SGN"}}}.ActiveAirports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"DAD"}, got)

	got, err = AirportChain{airportsMock{err: errors.New("db down")}, airportsMock{codes: []string{"SGN"}}}.ActiveAirports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"SGN"}, got)

	_, err = AirportChain{airportsMock{err: errors.New("db down")}, airportsMock{}}.ActiveAirports(ctx)
	assert.ErrorContains(t, err, "db down")

	_, err = AirportChain{airportsMock{}}.ActiveAirports(ctx)
	assert.Error(t, err)
}
