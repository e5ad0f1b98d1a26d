// Package common holds the configuration and logging setup shared by the tlock commands.
package common
