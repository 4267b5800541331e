// Package dn implements the LDAP distinguished name grammar (RFC 4514):
// parsing a DN string into an ordered sequence of RDNs, each RDN a
// non-empty set of attribute-value assertions, plus the normalised-form
// comparison used to decide whether two DNs name the same entry.
package dn
