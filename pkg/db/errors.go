/*
 * Copyright 2025 Veritime Systems, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package db

import "errors"

var (
	ErrMissingDSN      = errors.New("database connection string is required")
	ErrFailedToConnect = errors.New("failed to connect to database")
	ErrFailedToMigrate = errors.New("failed to apply schema")
	ErrFailedToInsert  = errors.New("failed to insert row")
	ErrFailedToQuery   = errors.New("failed to query rows")
	ErrFailedToScan    = errors.New("failed to scan row")
)
