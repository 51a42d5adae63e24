// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package postgres

// VersionTable is the name of the per schema bookkeeping table.
const VersionTable = "patch"

// patchAccessLockId is the advisory lock key taken when a run asks for
// exclusive access. The value has no meaning and was picked randomly.
const patchAccessLockId int64 = 2716057353

const (
	tryXactLock = `select pg_try_advisory_xact_lock($1);`

	currentSchemas = `select unnest(current_schemas(false));`

	showSearchPath = `select current_setting('search_path');`

	setSearchPath = `select set_config('search_path', $1, false);`

	tableExists = `
select exists (
  select 1
    from information_schema.tables
   where table_schema = coalesce(nullif($1, ''), current_schema())
     and table_name   = $2
);`

	columnExists = `
select exists (
  select 1
    from information_schema.columns
   where table_schema = coalesce(nullif($1, ''), current_schema())
     and table_name   = $2
     and column_name  = $3
);`

	siteSchemas = `select "schema" from "_central"."site" order by "schema";`

	createSchema = `create schema if not exists %s;`

	createVersionTable = `
create table if not exists %s (
  "id"      serial            primary key,
  "section" character varying not null unique,
  "version" character varying not null,
  "fix"     integer           not null default 0
);`

	addFixColumn = `alter table %s add column "fix" integer not null default 0;`

	selectRecords = `select "section", "version", "fix" from %s;`

	insertVersion = `insert into %s ("section", "version", "fix") values ($1, $2, $3);`

	updateVersion = `update %s set "version" = $2, "fix" = $3 where "section" = $1;`

	deleteVersion = `delete from %s where "section" = $1;`
)
