// Package scraper defines the domain types, ports, and error taxonomy shared by
// the privacy-policy harvesting pipeline: sites go in, one Result per site
// comes out.
package scraper
