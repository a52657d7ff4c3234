// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/go-ldap/ldap/v3"
)

// LDAPSConnector connects over LDAPS and optionally performs a simple bind.
type LDAPSConnector struct{}

// Connect implements Connector.
func (LDAPSConnector) Connect(ctx context.Context, req ConnectRequest) error {
	url := "ldaps://" + net.JoinHostPort(req.Host, strconv.Itoa(req.Port))

	dialer := &net.Dialer{Timeout: req.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	conn, err := ldap.DialURL(url,
		ldap.DialWithDialer(dialer),
		ldap.DialWithTLSConfig(req.TLSConfig),
	)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	conn.SetTimeout(req.Timeout)

	if req.BindDN == "" {
		return nil
	}
	if err := conn.Bind(req.BindDN, req.Password); err != nil {
		return fmt.Errorf("bind as %s: %w", req.BindDN, err)
	}
	return nil
}
